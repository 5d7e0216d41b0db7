package models

import (
	"github.com/shopspring/decimal"
)

// Click callback actions as sent in the "action" field, plus the lack-of-money marker.
const (
	ClickActionPrepare     = "0"
	ClickActionComplete    = "1"
	ClickActionLackOfMoney = "-5017"
)

type ClickStatus string

const (
	ClickStatusCreated  ClickStatus = "CREATED"
	ClickStatusFinished ClickStatus = "FINISHED"
	ClickStatusCanceled ClickStatus = "CANCELED"
)

// ClickTransaction is the audit and idempotency record of one Click payment.
type ClickTransaction struct {
	BaseModel
	ClickTransID    string          `json:"click_trans_id" gorm:"size:255;not null;uniqueIndex"`
	MerchantTransID string          `json:"merchant_trans_id" gorm:"size:255;not null;index"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	Action          string          `json:"action" gorm:"size:10;not null"`
	Status          ClickStatus     `json:"status" gorm:"size:20;not null;default:'CREATED'"`
	SignString      string          `json:"sign_string" gorm:"size:255"`
	SignTime        string          `json:"sign_time" gorm:"size:50"`
}

// Payme transaction states as defined by the merchant protocol.
const (
	PaymeStateCreated               = 1
	PaymeStatePerformed             = 2
	PaymeStateCancelled             = -1
	PaymeStateCancelledAfterPerform = -2
)

// PaymeTransaction is the audit and idempotency record of one Payme payment.
// Times are unix milliseconds, as the protocol exchanges them.
type PaymeTransaction struct {
	BaseModel
	TransactionID string          `json:"transaction_id" gorm:"size:64;not null;uniqueIndex"`
	OrderKey      string          `json:"order_key" gorm:"size:255;not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	State         int             `json:"state" gorm:"not null;default:1"`
	Reason        *int            `json:"reason"`
	PaymeTime     int64           `json:"payme_time"`
	CreateTime    int64           `json:"create_time" gorm:"index"`
	PerformTime   int64           `json:"perform_time"`
	CancelTime    int64           `json:"cancel_time"`
}
