package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier delivers one text to a set of phone numbers.
type Notifier interface {
	SendMass(ctx context.Context, phones []string, text string) error
}

const notifyTimeout = 30 * time.Second

// PaymentService books payments against student balances and cash registers.
type PaymentService struct {
	db          *gorm.DB
	notifier    Notifier
	smsTemplate string
	pending     sync.WaitGroup
}

// NewPaymentService builds the service. notifier may be nil; template takes the
// amount and the student's full name, in that order.
func NewPaymentService(db *gorm.DB, notifier Notifier, template string) *PaymentService {
	return &PaymentService{db: db, notifier: notifier, smsTemplate: template}
}

type CreatePaymentInput struct {
	PaymentType        models.PaymentType
	PaymentMethod      models.PaymentMethod
	PaymentModelType   models.PaymentModelType
	Amount             decimal.Decimal
	PaymentDate        time.Time
	StudentID          *uint
	OutlayID           *uint
	Comment            string
	CreatedUserID      *uint
	ClickTransactionID *uint
	PaymeTransactionID *uint
}

func (in CreatePaymentInput) validate() error {
	const op = "create payment"
	if !in.PaymentType.Valid() {
		return ValidationError(op, "unknown payment type %q", in.PaymentType)
	}
	if !in.PaymentMethod.Valid() {
		return ValidationError(op, "unknown payment method %q", in.PaymentMethod)
	}
	if !in.Amount.IsPositive() {
		return ValidationError(op, "amount must be positive")
	}
	switch in.PaymentModelType {
	case models.PaymentModelStudent:
		if in.StudentID == nil {
			return ValidationError(op, "student is required for a student payment")
		}
	case models.PaymentModelOutlay:
		if in.OutlayID == nil {
			return ValidationError(op, "outlay is required for an outlay payment")
		}
	default:
		return ValidationError(op, "unknown payment model type %q", in.PaymentModelType)
	}
	return nil
}

// CreatePayment books a payment in one DB transaction and then notifies the
// student. A notification failure never undoes the payment.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*models.Payment, error) {
	var payment *models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.CreatePaymentTx(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.NotifyPaymentCreated(ctx, payment)
	return payment, nil
}

// CreatePaymentTx performs the writes of CreatePayment inside tx. The caller
// commits and is responsible for calling NotifyPaymentCreated afterwards.
func (s *PaymentService) CreatePaymentTx(tx *gorm.DB, in CreatePaymentInput) (*models.Payment, error) {
	const op = "create payment"
	if err := in.validate(); err != nil {
		return nil, err
	}

	payment := models.Payment{
		PaymentType:        in.PaymentType,
		PaymentMethod:      in.PaymentMethod,
		PaymentModelType:   in.PaymentModelType,
		Amount:             in.Amount,
		PaymentDate:        in.PaymentDate,
		Comment:            in.Comment,
		CreatedUserID:      in.CreatedUserID,
		ClickTransactionID: in.ClickTransactionID,
		PaymeTransactionID: in.PaymeTransactionID,
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = time.Now()
	}
	if err := checkGatewayTag(tx, "click_transaction_id", in.ClickTransactionID); err != nil {
		return nil, err
	}
	if err := checkGatewayTag(tx, "payme_transaction_id", in.PaymeTransactionID); err != nil {
		return nil, err
	}

	switch in.PaymentModelType {
	case models.PaymentModelStudent:
		student, err := findStudent(tx, op, *in.StudentID)
		if err != nil {
			return nil, err
		}
		if err := IncreaseStudentBalance(tx, student.ID, payment.SignedAmount()); err != nil {
			return nil, err
		}
		balance, err := StudentBalance(tx, student.ID)
		if err != nil {
			return nil, err
		}
		student.Balance = balance
		payment.StudentID = &student.ID
		payment.StudentBalanceAfter = balance
		payment.Student = student
	case models.PaymentModelOutlay:
		var outlay models.OutlayItem
		err := tx.Preload("Category").First(&outlay, *in.OutlayID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError(op, "outlay %d not found", *in.OutlayID)
		}
		if err != nil {
			return nil, wrapDB(op, err)
		}
		payment.OutlayID = &outlay.ID
		payment.Outlay = &outlay
	}

	if err := tx.Omit("Student", "Outlay").Create(&payment).Error; err != nil {
		return nil, wrapDB(op, err)
	}
	if err := applyCashDelta(tx, payment.PaymentMethod, payment.SignedAmount()); err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"payment_id": payment.ID,
		"type":       payment.PaymentType,
		"method":     payment.PaymentMethod,
		"amount":     payment.Amount.String(),
	}
	if payment.StudentID != nil {
		fields["student_id"] = *payment.StudentID
	}
	logrus.WithFields(fields).Info("Payment created")
	return &payment, nil
}

func checkGatewayTag(tx *gorm.DB, column string, id *uint) error {
	if id == nil {
		return nil
	}
	var count int64
	if err := tx.Unscoped().Model(&models.Payment{}).
		Where(column+" = ?", *id).
		Count(&count).Error; err != nil {
		return wrapDB("create payment", err)
	}
	if count > 0 {
		return ConflictError("create payment", "gateway transaction %d already has a payment", *id)
	}
	return nil
}

// NotifyPaymentCreated sends the payment SMS to the student's phones in the
// background and returns at once. Failures are logged and swallowed.
func (s *PaymentService) NotifyPaymentCreated(ctx context.Context, payment *models.Payment) {
	if s.notifier == nil || payment == nil || payment.Student == nil {
		return
	}
	phones := payment.Student.PhoneNumbers()
	if len(phones) == 0 {
		return
	}
	text := fmt.Sprintf(s.smsTemplate, payment.Amount.StringFixed(2), payment.Student.FullName)
	paymentID, studentID := payment.ID, payment.Student.ID

	// the request context ends with the response
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.notifier.SendMass(sendCtx, phones, text); err != nil {
			logrus.WithFields(logrus.Fields{
				"payment_id": paymentID,
				"student_id": studentID,
				"error":      err.Error(),
			}).Warn("Payment SMS failed")
		}
	}()
}

// Wait blocks until every payment SMS started so far has finished.
func (s *PaymentService) Wait() {
	s.pending.Wait()
}

// DeletePayment reverses a payment's balance and cash effects and soft-deletes it.
func (s *PaymentService) DeletePayment(ctx context.Context, paymentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := tx.First(&payment, paymentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundError("delete payment", "payment %d not found", paymentID)
		}
		if err != nil {
			return wrapDB("delete payment", err)
		}
		return DeletePaymentTx(tx, &payment)
	})
}

// DeletePaymentTx performs the writes of DeletePayment on a loaded payment inside tx.
func DeletePaymentTx(tx *gorm.DB, payment *models.Payment) error {
	signed := payment.SignedAmount()
	if payment.PaymentModelType == models.PaymentModelStudent && payment.StudentID != nil {
		if err := DecreaseStudentBalance(tx, *payment.StudentID, signed); err != nil {
			return err
		}
	}
	if err := applyCashDelta(tx, payment.PaymentMethod, signed.Neg()); err != nil {
		return err
	}
	if err := tx.Delete(payment).Error; err != nil {
		return wrapDB("delete payment", err)
	}
	fields := logrus.Fields{"payment_id": payment.ID}
	if payment.StudentID != nil {
		fields["student_id"] = *payment.StudentID
	}
	logrus.WithFields(fields).Info("Payment deleted")
	return nil
}

// PaymentFilter bounds a summary by payment date; nil bounds are open.
type PaymentFilter struct {
	From *time.Time
	To   *time.Time
}

type MethodSummary struct {
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Count         int64                `json:"count"`
	Income        decimal.Decimal      `json:"income"`
	Outcome       decimal.Decimal      `json:"outcome"`
	Net           decimal.Decimal      `json:"net"`
}

type PaymentSummaryResult struct {
	Count   int64           `json:"count"`
	Income  decimal.Decimal `json:"income"`
	Outcome decimal.Decimal `json:"outcome"`
	Net     decimal.Decimal `json:"net"`
	Methods []MethodSummary `json:"methods"`
}

// PaymentSummary totals non-deleted payments overall and per method.
func (s *PaymentService) PaymentSummary(ctx context.Context, filter PaymentFilter) (*PaymentSummaryResult, error) {
	query := s.db.WithContext(ctx).Model(&models.Payment{})
	if filter.From != nil {
		query = query.Where("payment_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("payment_date <= ?", *filter.To)
	}
	var rows []models.Payment
	if err := query.Select("id", "payment_type", "payment_method", "amount").
		Order("payment_method").Find(&rows).Error; err != nil {
		return nil, wrapDB("payment summary", err)
	}

	result := &PaymentSummaryResult{Methods: []MethodSummary{}}
	index := map[models.PaymentMethod]int{}
	for _, p := range rows {
		i, ok := index[p.PaymentMethod]
		if !ok {
			i = len(result.Methods)
			index[p.PaymentMethod] = i
			result.Methods = append(result.Methods, MethodSummary{PaymentMethod: p.PaymentMethod})
		}
		m := &result.Methods[i]
		m.Count++
		result.Count++
		if p.PaymentType == models.PaymentTypeOutcome {
			m.Outcome = m.Outcome.Add(p.Amount)
			result.Outcome = result.Outcome.Add(p.Amount)
		} else {
			m.Income = m.Income.Add(p.Amount)
			result.Income = result.Income.Add(p.Amount)
		}
		m.Net = m.Income.Sub(m.Outcome)
	}
	result.Net = result.Income.Sub(result.Outcome)
	return result, nil
}
