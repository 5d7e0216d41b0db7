package services

import (
	"context"
	"sort"
	"time"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BalanceChangeType string

const (
	BalanceChangeIncome  BalanceChangeType = "INCOME"
	BalanceChangeOutcome BalanceChangeType = "OUTCOME"
)

type BalanceChangeReason string

const (
	ReasonPayment    BalanceChangeReason = "PAYMENT"
	ReasonStudy      BalanceChangeReason = "STUDY"
	ReasonBonus      BalanceChangeReason = "BONUS"
	ReasonAdjustment BalanceChangeReason = "ADJUSTMENT"
)

// reasonOrder breaks ties between entries that share a date.
var reasonOrder = map[BalanceChangeReason]int{
	ReasonPayment:    0,
	ReasonStudy:      1,
	ReasonBonus:      2,
	ReasonAdjustment: 3,
}

// BalanceChange is one line of the debit/credit report.
type BalanceChange struct {
	ID                uint                `json:"id"`
	Date              time.Time           `json:"date"`
	Total             decimal.Decimal     `json:"total"`
	Reason            BalanceChangeReason `json:"reason"`
	BalanceChangeType BalanceChangeType   `json:"balance_change_type"`
	BalanceBefore     decimal.Decimal     `json:"balance_before"`
	BalanceAfter      decimal.Decimal     `json:"balance_after"`
	MarkedForDelete   bool                `json:"marked_for_delete"`
	Comment           string              `json:"comment"`
}

func (c BalanceChange) signed() decimal.Decimal {
	if c.BalanceChangeType == BalanceChangeOutcome {
		return c.Total.Neg()
	}
	return c.Total
}

// ReportService rebuilds a student's balance history from the ledger tables.
// It never writes.
type ReportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// DebitCreditReport merges payments, tuition charges, bonuses and adjustments of
// one student into chronological order and folds a running balance from zero.
func (s *ReportService) DebitCreditReport(ctx context.Context, studentID uint) ([]BalanceChange, error) {
	const op = "debit credit report"
	db := s.db.WithContext(ctx)
	if _, err := findStudent(db, op, studentID); err != nil {
		return nil, err
	}

	var payments []models.Payment
	if err := db.Where("student_id = ? AND payment_model_type = ?", studentID, models.PaymentModelStudent).
		Find(&payments).Error; err != nil {
		return nil, wrapDB(op, err)
	}
	var charges []models.StudentTransaction
	if err := db.Where("student_id = ?", studentID).Find(&charges).Error; err != nil {
		return nil, wrapDB(op, err)
	}
	var bonuses []models.StudentBonus
	if err := db.Where("student_id = ?", studentID).Find(&bonuses).Error; err != nil {
		return nil, wrapDB(op, err)
	}
	var adjustments []models.StudentBalanceAdjustment
	if err := db.Where("student_id = ?", studentID).Find(&adjustments).Error; err != nil {
		return nil, wrapDB(op, err)
	}

	changes := make([]BalanceChange, 0, len(payments)+len(charges)+len(bonuses)+len(adjustments))
	for _, p := range payments {
		kind := BalanceChangeIncome
		if p.PaymentType == models.PaymentTypeOutcome {
			kind = BalanceChangeOutcome
		}
		changes = append(changes, BalanceChange{
			ID:                p.ID,
			Date:              p.PaymentDate,
			Total:             p.Amount.Abs(),
			Reason:            ReasonPayment,
			BalanceChangeType: kind,
			MarkedForDelete:   p.MarkedForDelete,
			Comment:           p.Comment,
		})
	}
	for _, t := range charges {
		changes = append(changes, BalanceChange{
			ID:                t.ID,
			Date:              t.TransactionDate,
			Total:             t.Amount,
			Reason:            ReasonStudy,
			BalanceChangeType: BalanceChangeOutcome,
		})
	}
	for _, b := range bonuses {
		kind := BalanceChangeIncome
		if b.Amount.IsNegative() {
			kind = BalanceChangeOutcome
		}
		changes = append(changes, BalanceChange{
			ID:                b.ID,
			Date:              b.CreatedAt,
			Total:             b.Amount.Abs(),
			Reason:            ReasonBonus,
			BalanceChangeType: kind,
			MarkedForDelete:   b.MarkedForDelete,
			Comment:           b.Comment,
		})
	}
	for _, a := range adjustments {
		diff := a.BalanceDiff()
		kind := BalanceChangeIncome
		if diff.IsNegative() {
			kind = BalanceChangeOutcome
		}
		changes = append(changes, BalanceChange{
			ID:                a.ID,
			Date:              a.CreatedAt,
			Total:             diff.Abs(),
			Reason:            ReasonAdjustment,
			BalanceChangeType: kind,
			MarkedForDelete:   a.MarkedForDelete,
			Comment:           a.Comment,
		})
	}

	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Reason != b.Reason {
			return reasonOrder[a.Reason] < reasonOrder[b.Reason]
		}
		return a.ID < b.ID
	})

	balance := decimal.Zero
	for i := range changes {
		changes[i].BalanceBefore = balance
		balance = balance.Add(changes[i].signed())
		changes[i].BalanceAfter = balance
	}
	return changes, nil
}

// BalanceCheck compares the cached balance with the one rebuilt from the ledger.
type BalanceCheck struct {
	StudentID     uint            `json:"student_id"`
	Cached        decimal.Decimal `json:"cached"`
	Reconstructed decimal.Decimal `json:"reconstructed"`
	Consistent    bool            `json:"consistent"`
}

// VerifyStudentBalance reports whether the stored balance matches the ledger.
func (s *ReportService) VerifyStudentBalance(ctx context.Context, studentID uint) (*BalanceCheck, error) {
	changes, err := s.DebitCreditReport(ctx, studentID)
	if err != nil {
		return nil, err
	}
	cached, err := StudentBalance(s.db.WithContext(ctx), studentID)
	if err != nil {
		return nil, err
	}
	rebuilt := decimal.Zero
	if n := len(changes); n > 0 {
		rebuilt = changes[n-1].BalanceAfter
	}
	return &BalanceCheck{
		StudentID:     studentID,
		Cached:        cached,
		Reconstructed: rebuilt,
		Consistent:    cached.Equal(rebuilt),
	}, nil
}
