package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypeIncome  PaymentType = "INCOME"
	PaymentTypeOutcome PaymentType = "OUTCOME"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	return t == PaymentTypeIncome || t == PaymentTypeOutcome
}

// Signed returns amount with the sign this payment type applies to a balance.
func (t PaymentType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == PaymentTypeOutcome {
		return amount.Neg()
	}
	return amount
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodHumo     PaymentMethod = "HUMO"
	PaymentMethodUzcard   PaymentMethod = "UZCARD"
	PaymentMethodClick    PaymentMethod = "CLICK"
	PaymentMethodPayme    PaymentMethod = "PAYME"
	PaymentMethodUzum     PaymentMethod = "UZUM"
)

var paymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodCash: {}, PaymentMethodCard: {}, PaymentMethodTransfer: {}, PaymentMethodHumo: {},
	PaymentMethodUzcard: {}, PaymentMethodClick: {}, PaymentMethodPayme: {}, PaymentMethodUzum: {},
}

func (m PaymentMethod) Valid() bool {
	_, ok := paymentMethods[m]
	return ok
}

type PaymentModelType string

const (
	PaymentModelStudent PaymentModelType = "STUDENT"
	PaymentModelOutlay  PaymentModelType = "OUTLAY"
)

// Payment model
type Payment struct {
	BaseModel
	PaymentType         PaymentType      `json:"payment_type" gorm:"size:50;not null"`
	PaymentMethod       PaymentMethod    `json:"payment_method" gorm:"size:50;not null;index"`
	PaymentModelType    PaymentModelType `json:"payment_model_type" gorm:"size:50;not null"`
	StudentID           *uint            `json:"student_id" gorm:"index"`
	OutlayID            *uint            `json:"outlay_id" gorm:"index"`
	Amount              decimal.Decimal  `json:"amount" gorm:"type:decimal(15,2);not null"`
	StudentBalanceAfter decimal.Decimal  `json:"student_balance_after" gorm:"type:decimal(15,2);not null;default:0"`
	PaymentDate         time.Time        `json:"payment_date" gorm:"not null;index"`
	Comment             string           `json:"comment" gorm:"type:text"`
	ClickTransactionID  *uint            `json:"click_transaction_id" gorm:"uniqueIndex"`
	PaymeTransactionID  *uint            `json:"payme_transaction_id" gorm:"uniqueIndex"`
	CreatedUserID       *uint            `json:"created_user_id"`
	MarkedForDelete     bool             `json:"marked_for_delete" gorm:"default:false"`

	// Relationships
	Student *Student    `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Outlay  *OutlayItem `json:"outlay,omitempty" gorm:"foreignKey:OutlayID"`
}

// SignedAmount is the effect of the payment on a balance or a cash register.
func (p Payment) SignedAmount() decimal.Decimal {
	return p.PaymentType.Signed(p.Amount)
}

// Department resolves the department the payment is booked under.
// Student and Outlay (with its Category) must be preloaded.
func (p Payment) Department() Department {
	switch p.PaymentModelType {
	case PaymentModelStudent:
		if p.Student != nil {
			return p.Student.Department
		}
	case PaymentModelOutlay:
		if p.Outlay != nil && p.Outlay.Category != nil {
			return p.Outlay.Category.Department
		}
	}
	return ""
}

// Cash holds the running total of one payment method.
type Cash struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	PaymentMethod PaymentMethod   `json:"payment_method" gorm:"size:50;not null;uniqueIndex"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null;default:0"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OutlayCategory groups expense items.
type OutlayCategory struct {
	BaseModel
	Title      string     `json:"title" gorm:"size:255;not null"`
	Department Department `json:"department" gorm:"size:50;not null;default:'SCHOOL'"`

	Items []OutlayItem `json:"items,omitempty" gorm:"foreignKey:CategoryID"`
}

// OutlayItem is the target of an OUTLAY payment.
type OutlayItem struct {
	BaseModel
	CategoryID *uint  `json:"category_id" gorm:"index"`
	Title      string `json:"title" gorm:"size:255;not null"`

	Category *OutlayCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}
