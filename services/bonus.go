package services

import (
	"context"
	"errors"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerService owns the manual ledger records: bonuses and balance adjustments.
type LedgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

type CreateBonusInput struct {
	StudentID     uint
	Amount        decimal.Decimal
	Comment       string
	CreatedUserID *uint
}

// CreateBonus records a bonus and credits the student with it.
func (s *LedgerService) CreateBonus(ctx context.Context, in CreateBonusInput) (*models.StudentBonus, error) {
	if in.Amount.IsZero() {
		return nil, ValidationError("create bonus", "amount must not be zero")
	}
	bonus := models.StudentBonus{
		StudentID:     in.StudentID,
		Amount:        in.Amount,
		Comment:       in.Comment,
		CreatedUserID: in.CreatedUserID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findStudent(tx, "create bonus", in.StudentID); err != nil {
			return err
		}
		if err := tx.Create(&bonus).Error; err != nil {
			return wrapDB("create bonus", err)
		}
		return IncreaseStudentBalance(tx, in.StudentID, in.Amount)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"bonus_id":   bonus.ID,
		"student_id": bonus.StudentID,
		"amount":     bonus.Amount.String(),
	}).Info("Bonus created")
	return &bonus, nil
}

// DeleteBonus takes the bonus back from the balance and soft-deletes it.
func (s *LedgerService) DeleteBonus(ctx context.Context, bonusID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bonus models.StudentBonus
		err := tx.First(&bonus, bonusID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundError("delete bonus", "bonus %d not found", bonusID)
		}
		if err != nil {
			return wrapDB("delete bonus", err)
		}
		if err := DecreaseStudentBalance(tx, bonus.StudentID, bonus.Amount); err != nil {
			return err
		}
		return wrapDB("delete bonus", tx.Delete(&bonus).Error)
	})
}

// RecordKind names a ledger table that carries the marked-for-delete review flag.
type RecordKind string

const (
	RecordPayments    RecordKind = "payments"
	RecordBonuses     RecordKind = "bonuses"
	RecordAdjustments RecordKind = "adjustments"
)

// SetMarkedForDelete flags or unflags a ledger record for review. The balance is untouched.
func (s *LedgerService) SetMarkedForDelete(ctx context.Context, kind RecordKind, id uint, marked bool) error {
	var model interface{}
	switch kind {
	case RecordPayments:
		model = &models.Payment{}
	case RecordBonuses:
		model = &models.StudentBonus{}
	case RecordAdjustments:
		model = &models.StudentBalanceAdjustment{}
	default:
		return ValidationError("mark for delete", "unknown record kind %q", kind)
	}
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", id).
		UpdateColumn("marked_for_delete", marked)
	if res.Error != nil {
		return wrapDB("mark for delete", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
			return wrapDB("mark for delete", err)
		}
		if count == 0 {
			return NotFoundError("mark for delete", "%s record %d not found", kind, id)
		}
	}
	return nil
}
