// Package click implements the Click "shop API" merchant callbacks
// (prepare / complete) on top of gateways.OrderHandler.
package click

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"academy_backoffice/models"
	"academy_backoffice/services/gateways"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reply codes of the Click merchant protocol.
const (
	CodeSuccess             = 0
	CodeSignCheckFailed     = -1
	CodeInvalidAmount       = -2
	CodeActionNotFound      = -3
	CodeAlreadyPaid         = -4
	CodeOrderNotFound       = -5
	CodeTransactionNotFound = -6
	CodeFailedToUpdate      = -7
	CodeBadRequest          = -8
	CodeTransactionCanceled = -9
)

var errorNotes = map[int]string{
	CodeSuccess:             "Success",
	CodeSignCheckFailed:     "SIGN CHECK FAILED!",
	CodeInvalidAmount:       "Incorrect parameter amount",
	CodeActionNotFound:      "Action not found",
	CodeAlreadyPaid:         "Already paid",
	CodeOrderNotFound:       "User does not exist",
	CodeTransactionNotFound: "Transaction does not exist",
	CodeFailedToUpdate:      "Failed to update user",
	CodeBadRequest:          "Error in request from click",
	CodeTransactionCanceled: "Transaction cancelled",
}

// Config holds the merchant credentials issued by Click. Several service ids
// may share one secret; a signature valid for any of them is accepted.
type Config struct {
	ServiceIDs []string
	SecretKey  string
	MerchantID string
}

// Request is one prepare or complete callback. Values stay strings because the
// signature is computed over them exactly as sent.
type Request struct {
	ClickTransID      string `json:"click_trans_id" form:"click_trans_id" validate:"required"`
	ServiceID         string `json:"service_id" form:"service_id" validate:"required"`
	ClickPaydocID     string `json:"click_paydoc_id" form:"click_paydoc_id"`
	MerchantTransID   string `json:"merchant_trans_id" form:"merchant_trans_id" validate:"required"`
	MerchantPrepareID string `json:"merchant_prepare_id" form:"merchant_prepare_id"`
	Amount            string `json:"amount" form:"amount" validate:"required"`
	Action            string `json:"action" form:"action" validate:"required"`
	Error             string `json:"error" form:"error"`
	ErrorNote         string `json:"error_note" form:"error_note"`
	SignTime          string `json:"sign_time" form:"sign_time" validate:"required"`
	SignString        string `json:"sign_string" form:"sign_string" validate:"required"`
}

// Response is the JSON body Click expects back, always with HTTP 200.
type Response struct {
	ClickTransID      string `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID *uint  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID *uint  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// Service handles Click callbacks.
type Service struct {
	cfg    Config
	db     *gorm.DB
	orders gateways.OrderHandler
	now    func() time.Time
}

func NewService(cfg Config, db *gorm.DB, orders gateways.OrderHandler) *Service {
	return &Service{cfg: cfg, db: db, orders: orders, now: time.Now}
}

// Sign returns the MD5 signature of req for one service id.
func Sign(req Request, serviceID, secret string) string {
	var b strings.Builder
	b.WriteString(req.ClickTransID)
	b.WriteString(serviceID)
	b.WriteString(secret)
	b.WriteString(req.MerchantTransID)
	if req.MerchantPrepareID != "" {
		b.WriteString(req.MerchantPrepareID)
	}
	b.WriteString(req.Amount)
	b.WriteString(req.Action)
	b.WriteString(req.SignTime)
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Authorize checks sign_string against every configured service id in turn.
func (s *Service) Authorize(req Request) bool {
	if s.cfg.SecretKey == "" {
		return false
	}
	for _, id := range s.cfg.ServiceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		expected := Sign(req, id, s.cfg.SecretKey)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(req.SignString))) == 1 {
			return true
		}
	}
	return false
}

func reply(req Request, code int) Response {
	return Response{
		ClickTransID:    req.ClickTransID,
		MerchantTransID: req.MerchantTransID,
		Error:           code,
		ErrorNote:       errorNotes[code],
	}
}

// Handle authenticates the callback, validates the order and dispatches on action.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	log := logrus.WithFields(logrus.Fields{
		"provider":          gateways.ProviderClick,
		"click_trans_id":    req.ClickTransID,
		"merchant_trans_id": req.MerchantTransID,
		"action":            req.Action,
	})

	if !s.Authorize(req) {
		log.Warn("Click sign check failed")
		return reply(req, CodeSignCheckFailed)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return reply(req, CodeBadRequest)
	}
	switch s.orders.CheckOrder(ctx, req.MerchantTransID, amount) {
	case gateways.OrderNotFound:
		return reply(req, CodeOrderNotFound)
	case gateways.InvalidAmount:
		return reply(req, CodeInvalidAmount)
	}

	var resp Response
	switch req.Action {
	case models.ClickActionPrepare:
		resp = s.Prepare(ctx, req, amount)
	case models.ClickActionComplete:
		resp = s.Complete(ctx, req, amount)
	default:
		resp = reply(req, CodeActionNotFound)
	}
	log.WithField("error", resp.Error).Info("Click callback handled")
	return resp
}

// Prepare stores the transaction in CREATED state. A repeated prepare for the
// same click_trans_id gets the id of the row it already created.
func (s *Service) Prepare(ctx context.Context, req Request, amount decimal.Decimal) Response {
	db := s.db.WithContext(ctx)

	var row models.ClickTransaction
	err := db.Where("click_trans_id = ?", req.ClickTransID).First(&row).Error
	if err == nil {
		resp := reply(req, CodeSuccess)
		resp.MerchantPrepareID = &row.ID
		return resp
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithError(err).Error("Click prepare lookup failed")
		return reply(req, CodeFailedToUpdate)
	}

	row = models.ClickTransaction{
		ClickTransID:    req.ClickTransID,
		MerchantTransID: req.MerchantTransID,
		Amount:          amount,
		Action:          models.ClickActionPrepare,
		Status:          models.ClickStatusCreated,
		SignString:      req.SignString,
		SignTime:        req.SignTime,
	}
	if err := db.Create(&row).Error; err != nil {
		logrus.WithError(err).Error("Click prepare insert failed")
		return reply(req, CodeFailedToUpdate)
	}
	resp := reply(req, CodeSuccess)
	resp.MerchantPrepareID = &row.ID
	return resp
}

// Complete finalizes a prepared transaction. The row update and the payment
// commit together; a replayed complete never books a second payment.
func (s *Service) Complete(ctx context.Context, req Request, amount decimal.Decimal) Response {
	prepareID, err := strconv.ParseUint(req.MerchantPrepareID, 10, 64)
	if err != nil {
		return reply(req, CodeTransactionNotFound)
	}
	callbackErr, _ := strconv.Atoi(strings.TrimSpace(req.Error))

	code := CodeSuccess
	var payment *models.Payment
	var row models.ClickTransaction
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&row, uint(prepareID)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && row.ClickTransID != req.ClickTransID) {
			code = CodeTransactionNotFound
			return nil
		}
		if err != nil {
			return err
		}

		if callbackErr < 0 {
			if row.Status == models.ClickStatusFinished {
				code = CodeAlreadyPaid
				return nil
			}
			action := row.Action
			if strings.TrimSpace(req.Error) == models.ClickActionLackOfMoney {
				action = models.ClickActionLackOfMoney
			}
			code = CodeTransactionCanceled
			return tx.Model(&row).Updates(map[string]interface{}{
				"action": action,
				"status": models.ClickStatusCanceled,
			}).Error
		}
		if row.Action == models.ClickActionLackOfMoney || row.Status == models.ClickStatusCanceled {
			code = CodeTransactionCanceled
			return nil
		}
		if !row.Amount.Equal(amount) {
			code = CodeInvalidAmount
			return nil
		}
		if row.Action == req.Action || row.Status == models.ClickStatusFinished {
			code = CodeAlreadyPaid
			return nil
		}

		res := tx.Model(&models.ClickTransaction{}).
			Where("id = ? AND status = ?", row.ID, models.ClickStatusCreated).
			Updates(map[string]interface{}{
				"action": req.Action,
				"status": models.ClickStatusFinished,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			code = CodeAlreadyPaid
			return nil
		}
		payment, err = s.orders.SuccessfullyPayment(ctx, tx, gateways.PaidTransaction{
			Provider:  gateways.ProviderClick,
			GatewayID: row.ID,
			OrderID:   row.MerchantTransID,
			Amount:    row.Amount,
			PaidAt:    s.now(),
		})
		return err
	})
	if txErr != nil {
		logrus.WithError(txErr).WithField("click_trans_id", req.ClickTransID).Error("Click complete failed")
		return reply(req, CodeFailedToUpdate)
	}

	resp := reply(req, code)
	if code == CodeSuccess {
		resp.MerchantConfirmID = &row.ID
		s.orders.PaymentCommitted(ctx, payment)
	}
	return resp
}
