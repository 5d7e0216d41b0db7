package utils

import (
	"time"

	"academy_backoffice/models"
)

// Compact representations used across APIs
type StudentShort struct {
	ID            uint   `json:"id"`
	FullName      string `json:"full_name"`
	AccountNumber *int64 `json:"account_number,omitempty"`
	Balance       string `json:"balance"`
}

type PaymentDTO struct {
	ID                  uint          `json:"id"`
	PaymentType         string        `json:"payment_type"`
	PaymentMethod       string        `json:"payment_method"`
	PaymentModelType    string        `json:"payment_model_type"`
	Amount              string        `json:"amount"`
	StudentBalanceAfter string        `json:"student_balance_after"`
	PaymentDate         time.Time     `json:"payment_date"`
	Comment             string        `json:"comment,omitempty"`
	Department          string        `json:"department,omitempty"`
	MarkedForDelete     bool          `json:"marked_for_delete"`
	Student             *StudentShort `json:"student,omitempty"`
	OutlayID            *uint         `json:"outlay_id,omitempty"`
}

// ToPaymentDTO maps a payment; Student and Outlay.Category should be preloaded
// for the department to resolve.
func ToPaymentDTO(p models.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:                  p.ID,
		PaymentType:         string(p.PaymentType),
		PaymentMethod:       string(p.PaymentMethod),
		PaymentModelType:    string(p.PaymentModelType),
		Amount:              p.Amount.StringFixed(2),
		StudentBalanceAfter: p.StudentBalanceAfter.StringFixed(2),
		PaymentDate:         p.PaymentDate,
		Comment:             p.Comment,
		Department:          string(p.Department()),
		MarkedForDelete:     p.MarkedForDelete,
		OutlayID:            p.OutlayID,
	}
	if p.Student != nil {
		dto.Student = &StudentShort{
			ID:            p.Student.ID,
			FullName:      p.Student.FullName,
			AccountNumber: p.Student.AccountNumber,
			Balance:       p.Student.Balance.StringFixed(2),
		}
	}
	return dto
}

type CashDTO struct {
	PaymentMethod string    `json:"payment_method"`
	Amount        string    `json:"amount"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func ToCashDTOs(rows []models.Cash) []CashDTO {
	out := make([]CashDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, CashDTO{
			PaymentMethod: string(r.PaymentMethod),
			Amount:        r.Amount.StringFixed(2),
			UpdatedAt:     r.UpdatedAt,
		})
	}
	return out
}

type BonusDTO struct {
	ID              uint      `json:"id"`
	StudentID       uint      `json:"student_id"`
	Amount          string    `json:"amount"`
	Comment         string    `json:"comment,omitempty"`
	MarkedForDelete bool      `json:"marked_for_delete"`
	CreatedAt       time.Time `json:"created_at"`
}

func ToBonusDTO(b models.StudentBonus) BonusDTO {
	return BonusDTO{
		ID:              b.ID,
		StudentID:       b.StudentID,
		Amount:          b.Amount.StringFixed(2),
		Comment:         b.Comment,
		MarkedForDelete: b.MarkedForDelete,
		CreatedAt:       b.CreatedAt,
	}
}

type AdjustmentDTO struct {
	ID              uint      `json:"id"`
	StudentID       uint      `json:"student_id"`
	OldBalance      string    `json:"old_balance"`
	NewBalance      string    `json:"new_balance"`
	Difference      string    `json:"difference"`
	Comment         string    `json:"comment,omitempty"`
	MarkedForDelete bool      `json:"marked_for_delete"`
	CreatedAt       time.Time `json:"created_at"`
}

func ToAdjustmentDTO(a models.StudentBalanceAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:              a.ID,
		StudentID:       a.StudentID,
		OldBalance:      a.OldBalance.StringFixed(2),
		NewBalance:      a.NewBalance.StringFixed(2),
		Difference:      a.BalanceDiff().StringFixed(2),
		Comment:         a.Comment,
		MarkedForDelete: a.MarkedForDelete,
		CreatedAt:       a.CreatedAt,
	}
}
