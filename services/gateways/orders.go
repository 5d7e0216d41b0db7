// Package gateways holds what the Click and Payme merchant adapters share: the
// order capability they call back into once a payment is confirmed.
package gateways

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"academy_backoffice/models"
	"academy_backoffice/services"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CheckResult int

const (
	OrderFound CheckResult = iota
	OrderNotFound
	InvalidAmount
)

type Provider string

const (
	ProviderClick Provider = "CLICK"
	ProviderPayme Provider = "PAYME"
)

// PaidTransaction describes a gateway transaction that reached its final step.
type PaidTransaction struct {
	Provider  Provider
	GatewayID uint // id of the local ClickTransaction or PaymeTransaction row
	OrderID   string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

// OrderHandler is the capability a merchant adapter needs from the back office.
// db is the adapter's open transaction; PaymentCommitted runs after it commits.
type OrderHandler interface {
	CheckOrder(ctx context.Context, orderID string, amount decimal.Decimal) CheckResult
	SuccessfullyPayment(ctx context.Context, db *gorm.DB, paid PaidTransaction) (*models.Payment, error)
	CancelPayment(ctx context.Context, db *gorm.DB, paid PaidTransaction) error
	PaymentCommitted(ctx context.Context, payment *models.Payment)
}

// StudentOrders resolves orders as student account numbers and books gateway
// payments through the payment service.
type StudentOrders struct {
	db       *gorm.DB
	payments *services.PaymentService
}

func NewStudentOrders(db *gorm.DB, payments *services.PaymentService) *StudentOrders {
	return &StudentOrders{db: db, payments: payments}
}

// FindStudent returns the student owning the account number, or nil.
func (o *StudentOrders) FindStudent(ctx context.Context, db *gorm.DB, orderID string) (*models.Student, error) {
	account, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, nil
	}
	if db == nil {
		db = o.db
	}
	var student models.Student
	err = db.WithContext(ctx).Where("account_number = ?", account).First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// CheckOrder only checks that the account exists and the amount is positive;
// provider specific limits are enforced by the adapters.
func (o *StudentOrders) CheckOrder(ctx context.Context, orderID string, amount decimal.Decimal) CheckResult {
	student, err := o.FindStudent(ctx, nil, orderID)
	if err != nil {
		logrus.WithError(err).WithField("order_id", orderID).Error("Order lookup failed")
		return OrderNotFound
	}
	if student == nil {
		return OrderNotFound
	}
	if !amount.IsPositive() {
		return InvalidAmount
	}
	return OrderFound
}

// SuccessfullyPayment books an INCOME student payment tagged with the gateway row.
func (o *StudentOrders) SuccessfullyPayment(ctx context.Context, db *gorm.DB, paid PaidTransaction) (*models.Payment, error) {
	student, err := o.FindStudent(ctx, db, paid.OrderID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, services.NotFoundError("gateway payment", "no student with account number %s", paid.OrderID)
	}

	in := services.CreatePaymentInput{
		PaymentType:      models.PaymentTypeIncome,
		PaymentModelType: models.PaymentModelStudent,
		Amount:           paid.Amount,
		PaymentDate:      paid.PaidAt,
		StudentID:        &student.ID,
		Comment:          fmt.Sprintf("Balance top-up (%s): %s", paid.Provider, student.FullName),
	}
	gatewayID := paid.GatewayID
	switch paid.Provider {
	case ProviderClick:
		in.PaymentMethod = models.PaymentMethodClick
		in.ClickTransactionID = &gatewayID
	case ProviderPayme:
		in.PaymentMethod = models.PaymentMethodPayme
		in.PaymeTransactionID = &gatewayID
	default:
		return nil, services.ValidationError("gateway payment", "unknown provider %q", paid.Provider)
	}
	return o.payments.CreatePaymentTx(db.WithContext(ctx), in)
}

// CancelPayment reverses and soft-deletes the payment booked for the gateway row.
// A row that never produced a payment has nothing to reverse.
func (o *StudentOrders) CancelPayment(ctx context.Context, db *gorm.DB, paid PaidTransaction) error {
	column := "payme_transaction_id"
	if paid.Provider == ProviderClick {
		column = "click_transaction_id"
	}
	var payment models.Payment
	err := db.WithContext(ctx).Where(column+" = ?", paid.GatewayID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithFields(logrus.Fields{
			"provider":   paid.Provider,
			"gateway_id": paid.GatewayID,
		}).Warn("Cancelled gateway transaction has no payment")
		return nil
	}
	if err != nil {
		return err
	}
	return services.DeletePaymentTx(db.WithContext(ctx), &payment)
}

func (o *StudentOrders) PaymentCommitted(ctx context.Context, payment *models.Payment) {
	o.payments.NotifyPaymentCreated(ctx, payment)
}
