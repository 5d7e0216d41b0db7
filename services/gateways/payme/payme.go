// Package payme implements the Payme merchant JSON-RPC endpoint on top of
// gateways.OrderHandler.
package payme

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
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

// Config holds the merchant settings issued by Payme. Amount limits are in tiyin,
// the unit Payme sends.
type Config struct {
	MerchantKey string
	AccountKey  string
	MinAmount   int64
	MaxAmount   int64
	Timeout     time.Duration
}

// Service handles Payme merchant calls.
type Service struct {
	cfg    Config
	db     *gorm.DB
	orders gateways.OrderHandler
	lookup StudentLookup
	now    func() time.Time
}

// StudentLookup resolves an account for the "additional" block of CheckPerformTransaction.
type StudentLookup interface {
	FindStudent(ctx context.Context, db *gorm.DB, orderID string) (*models.Student, error)
}

func NewService(cfg Config, db *gorm.DB, orders gateways.OrderHandler, lookup StudentLookup) *Service {
	if cfg.AccountKey == "" {
		cfg.AccountKey = "account_number"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Hour
	}
	return &Service{cfg: cfg, db: db, orders: orders, lookup: lookup, now: time.Now}
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

// TiyinToSums converts the protocol amount to sums.
func TiyinToSums(tiyin int64) decimal.Decimal {
	return decimal.New(tiyin, -2)
}

// SumsToTiyin converts a stored amount back to the protocol unit.
func SumsToTiyin(sums decimal.Decimal) int64 {
	return sums.Shift(2).Round(0).IntPart()
}

// Authorize checks the "Basic base64(Paycom:<key>)" header.
func (s *Service) Authorize(header string) bool {
	if s.cfg.MerchantKey == "" {
		return false
	}
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return false
	}
	login, key, ok := strings.Cut(string(raw), ":")
	if !ok || login != "Paycom" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.MerchantKey)) == 1
}

// Handle authorizes and dispatches one JSON-RPC call. The reply always goes
// out with HTTP 200.
func (s *Service) Handle(ctx context.Context, authHeader string, body []byte) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Response{JSONRPC: "2.0", Error: NewError(CodeParseError, "")}
	}
	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if !s.Authorize(authHeader) {
		logrus.WithField("provider", gateways.ProviderPayme).Warn("Payme authorization failed")
		resp.Error = NewError(CodeInsufficientRights, "")
		return resp
	}

	var result interface{}
	var rpcErr *Error
	switch req.Method {
	case MethodCheckPerformTransaction:
		var p checkPerformParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.CheckPerformTransaction(ctx, p.Amount, p.Account)
		}
	case MethodCreateTransaction:
		var p createParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.CreateTransaction(ctx, p.ID, p.Time, p.Amount, p.Account)
		}
	case MethodPerformTransaction:
		var p idParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.PerformTransaction(ctx, p.ID)
		}
	case MethodCancelTransaction:
		var p cancelParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.CancelTransaction(ctx, p.ID, p.Reason)
		}
	case MethodCheckTransaction:
		var p idParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.CheckTransaction(ctx, p.ID)
		}
	case MethodGetStatement:
		var p statementParams
		if rpcErr = decodeParams(req.Params, &p); rpcErr == nil {
			result, rpcErr = s.GetStatement(ctx, p.From, p.To)
		}
	default:
		rpcErr = NewError(CodeMethodNotFound, req.Method)
	}

	logrus.WithFields(logrus.Fields{
		"provider": gateways.ProviderPayme,
		"method":   req.Method,
		"failed":   rpcErr != nil,
	}).Info("Payme call handled")
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}
	resp.Result = result
	return resp
}

func decodeParams(raw json.RawMessage, dst interface{}) *Error {
	if len(raw) == 0 {
		return NewError(CodeInvalidRequest, "params")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewError(CodeInvalidRequest, "params")
	}
	return nil
}

// checkOrder validates the account and the amount (tiyin) of a payment.
func (s *Service) checkOrder(ctx context.Context, amount int64, account map[string]string) (string, *Error) {
	orderID := strings.TrimSpace(account[s.cfg.AccountKey])
	if orderID == "" {
		return "", NewError(CodeOrderNotFound, s.cfg.AccountKey)
	}
	sums := TiyinToSums(amount)
	switch s.orders.CheckOrder(ctx, orderID, sums) {
	case gateways.OrderNotFound:
		return "", NewError(CodeOrderNotFound, s.cfg.AccountKey)
	case gateways.InvalidAmount:
		return "", NewError(CodeInvalidAmount, "amount")
	}
	if amount < s.cfg.MinAmount || (s.cfg.MaxAmount > 0 && amount > s.cfg.MaxAmount) {
		return "", NewError(CodeInvalidAmount, "amount")
	}
	return orderID, nil
}

func (s *Service) CheckPerformTransaction(ctx context.Context, amount int64, account map[string]string) (*CheckPerformResult, *Error) {
	orderID, rpcErr := s.checkOrder(ctx, amount, account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	result := &CheckPerformResult{Allow: true}
	if s.lookup != nil {
		if student, err := s.lookup.FindStudent(ctx, nil, orderID); err == nil && student != nil {
			result.Additional = &Additional{
				AccountNumber: orderID,
				Balance:       student.Balance.StringFixed(2),
				ClientName:    student.FullName,
				ClientPhone:   student.PhoneNumber,
			}
		}
	}
	return result, nil
}

func (s *Service) findTransaction(ctx context.Context, db *gorm.DB, id string) (*models.PaymeTransaction, *Error) {
	var row models.PaymeTransaction
	err := db.WithContext(ctx).Where("transaction_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewError(CodeTransactionNotFound, "id")
	}
	if err != nil {
		logrus.WithError(err).Error("Payme transaction lookup failed")
		return nil, NewError(CodeSystemError, "")
	}
	return &row, nil
}

func (s *Service) expired(row *models.PaymeTransaction) bool {
	return s.nowMillis()-row.CreateTime > s.cfg.Timeout.Milliseconds()
}

// cancelExpired moves an expired CREATED row to cancelled with the timeout reason.
func (s *Service) cancelExpired(ctx context.Context, row *models.PaymeTransaction) *Error {
	reason := ReasonTimeout
	err := s.db.WithContext(ctx).Model(&models.PaymeTransaction{}).
		Where("id = ? AND state = ?", row.ID, models.PaymeStateCreated).
		Updates(map[string]interface{}{
			"state":       models.PaymeStateCancelled,
			"reason":      reason,
			"cancel_time": s.nowMillis(),
		}).Error
	if err != nil {
		logrus.WithError(err).Error("Payme timeout cancel failed")
		return NewError(CodeSystemError, "")
	}
	return NewError(CodeCantPerform, "timeout")
}

func (s *Service) CreateTransaction(ctx context.Context, id string, paymeTime, amount int64, account map[string]string) (*TransactionResult, *Error) {
	if id == "" {
		return nil, NewError(CodeInvalidRequest, "id")
	}
	existing, rpcErr := s.findTransaction(ctx, s.db, id)
	if rpcErr == nil {
		if existing.State != models.PaymeStateCreated {
			return nil, NewError(CodeCantPerform, "state")
		}
		if s.expired(existing) {
			return nil, s.cancelExpired(ctx, existing)
		}
		return &TransactionResult{
			Transaction: strconv.FormatUint(uint64(existing.ID), 10),
			State:       existing.State,
			CreateTime:  existing.CreateTime,
		}, nil
	}
	if rpcErr.Code != CodeTransactionNotFound {
		return nil, rpcErr
	}

	orderID, rpcErr := s.checkOrder(ctx, amount, account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	row := models.PaymeTransaction{
		TransactionID: id,
		OrderKey:      orderID,
		Amount:        TiyinToSums(amount),
		State:         models.PaymeStateCreated,
		PaymeTime:     paymeTime,
		CreateTime:    s.nowMillis(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		logrus.WithError(err).Error("Payme create transaction failed")
		return nil, NewError(CodeSystemError, "")
	}
	return &TransactionResult{
		Transaction: strconv.FormatUint(uint64(row.ID), 10),
		State:       row.State,
		CreateTime:  row.CreateTime,
	}, nil
}

func (s *Service) PerformTransaction(ctx context.Context, id string) (*TransactionResult, *Error) {
	row, rpcErr := s.findTransaction(ctx, s.db, id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	switch row.State {
	case models.PaymeStatePerformed:
		return performedResult(row), nil
	case models.PaymeStateCreated:
	default:
		return nil, NewError(CodeCantPerform, "state")
	}
	if s.expired(row) {
		return nil, s.cancelExpired(ctx, row)
	}

	performTime := s.nowMillis()
	var payment *models.Payment
	alreadyDone := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymeTransaction{}).
			Where("id = ? AND state = ?", row.ID, models.PaymeStateCreated).
			Updates(map[string]interface{}{
				"state":        models.PaymeStatePerformed,
				"perform_time": performTime,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			alreadyDone = true
			return nil
		}
		var err error
		payment, err = s.orders.SuccessfullyPayment(ctx, tx, gateways.PaidTransaction{
			Provider:  gateways.ProviderPayme,
			GatewayID: row.ID,
			OrderID:   row.OrderKey,
			Amount:    row.Amount,
			PaidAt:    time.UnixMilli(performTime),
		})
		return err
	})
	if err != nil {
		logrus.WithError(err).WithField("transaction_id", id).Error("Payme perform failed")
		return nil, NewError(CodeCantPerform, "perform")
	}
	if alreadyDone {
		fresh, rpcErr := s.findTransaction(ctx, s.db, id)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if fresh.State != models.PaymeStatePerformed {
			return nil, NewError(CodeCantPerform, "state")
		}
		return performedResult(fresh), nil
	}

	s.orders.PaymentCommitted(ctx, payment)
	row.State = models.PaymeStatePerformed
	row.PerformTime = performTime
	return performedResult(row), nil
}

func performedResult(row *models.PaymeTransaction) *TransactionResult {
	pt := row.PerformTime
	return &TransactionResult{
		Transaction: strconv.FormatUint(uint64(row.ID), 10),
		State:       row.State,
		PerformTime: &pt,
	}
}

func cancelledResult(row *models.PaymeTransaction) *TransactionResult {
	ct := row.CancelTime
	return &TransactionResult{
		Transaction: strconv.FormatUint(uint64(row.ID), 10),
		State:       row.State,
		CancelTime:  &ct,
	}
}

func (s *Service) CancelTransaction(ctx context.Context, id string, reason *int) (*TransactionResult, *Error) {
	row, rpcErr := s.findTransaction(ctx, s.db, id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if row.State == models.PaymeStateCancelled || row.State == models.PaymeStateCancelledAfterPerform {
		return cancelledResult(row), nil
	}

	cancelTime := s.nowMillis()
	newState := models.PaymeStateCancelled
	if row.State == models.PaymeStatePerformed {
		newState = models.PaymeStateCancelledAfterPerform
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymeTransaction{}).
			Where("id = ? AND state = ?", row.ID, row.State).
			Updates(map[string]interface{}{
				"state":       newState,
				"reason":      reason,
				"cancel_time": cancelTime,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errConcurrentChange
		}
		if newState == models.PaymeStateCancelledAfterPerform {
			return s.orders.CancelPayment(ctx, tx, gateways.PaidTransaction{
				Provider:  gateways.ProviderPayme,
				GatewayID: row.ID,
				OrderID:   row.OrderKey,
				Amount:    row.Amount,
			})
		}
		return nil
	})
	if errors.Is(err, errConcurrentChange) {
		fresh, rpcErr := s.findTransaction(ctx, s.db, id)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if fresh.State < 0 {
			return cancelledResult(fresh), nil
		}
		return nil, NewError(CodeCantCancel, "state")
	}
	if err != nil {
		logrus.WithError(err).WithField("transaction_id", id).Error("Payme cancel failed")
		return nil, NewError(CodeCantCancel, "cancel")
	}

	row.State = newState
	row.CancelTime = cancelTime
	logrus.WithFields(logrus.Fields{
		"transaction_id": id,
		"state":          newState,
	}).Info("Payme transaction cancelled")
	return cancelledResult(row), nil
}

var errConcurrentChange = errors.New("payme: transaction changed concurrently")

func (s *Service) CheckTransaction(ctx context.Context, id string) (*CheckTransactionResult, *Error) {
	row, rpcErr := s.findTransaction(ctx, s.db, id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &CheckTransactionResult{
		CreateTime:  row.CreateTime,
		PerformTime: row.PerformTime,
		CancelTime:  row.CancelTime,
		Transaction: strconv.FormatUint(uint64(row.ID), 10),
		State:       row.State,
		Reason:      row.Reason,
	}, nil
}

// GetStatement lists transactions created by Payme within [from, to] (unix ms).
func (s *Service) GetStatement(ctx context.Context, from, to int64) (*StatementResult, *Error) {
	var rows []models.PaymeTransaction
	if err := s.db.WithContext(ctx).
		Where("payme_time >= ? AND payme_time <= ?", from, to).
		Order("payme_time").Find(&rows).Error; err != nil {
		logrus.WithError(err).Error("Payme statement failed")
		return nil, NewError(CodeSystemError, "")
	}
	result := &StatementResult{Transactions: make([]StatementEntry, 0, len(rows))}
	for _, r := range rows {
		result.Transactions = append(result.Transactions, StatementEntry{
			ID:          r.TransactionID,
			Time:        r.PaymeTime,
			Amount:      SumsToTiyin(r.Amount),
			Account:     map[string]string{s.cfg.AccountKey: r.OrderKey},
			CreateTime:  r.CreateTime,
			PerformTime: r.PerformTime,
			CancelTime:  r.CancelTime,
			Transaction: strconv.FormatUint(uint64(r.ID), 10),
			State:       r.State,
			Reason:      r.Reason,
		})
	}
	return result, nil
}
