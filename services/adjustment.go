package services

import (
	"context"
	"errors"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CreateAdjustmentInput struct {
	StudentID     uint
	NewBalance    decimal.Decimal
	Comment       string
	CreatedUserID *uint
}

// CreateAdjustment moves the balance to NewBalance. OldBalance is the live balance
// read inside the transaction and only the difference is applied, so writes that
// land concurrently are kept.
func (s *LedgerService) CreateAdjustment(ctx context.Context, in CreateAdjustmentInput) (*models.StudentBalanceAdjustment, error) {
	var adj models.StudentBalanceAdjustment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := StudentBalance(tx, in.StudentID)
		if err != nil {
			return err
		}
		adj = models.StudentBalanceAdjustment{
			StudentID:     in.StudentID,
			OldBalance:    current,
			NewBalance:    in.NewBalance,
			Comment:       in.Comment,
			CreatedUserID: in.CreatedUserID,
		}
		if err := tx.Create(&adj).Error; err != nil {
			return wrapDB("create adjustment", err)
		}
		return IncreaseStudentBalance(tx, in.StudentID, adj.BalanceDiff())
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"adjustment_id": adj.ID,
		"student_id":    adj.StudentID,
		"old_balance":   adj.OldBalance.String(),
		"new_balance":   adj.NewBalance.String(),
	}).Info("Balance adjusted")
	return &adj, nil
}

// DeleteAdjustment undoes the adjustment's difference and soft-deletes it.
func (s *LedgerService) DeleteAdjustment(ctx context.Context, adjustmentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var adj models.StudentBalanceAdjustment
		err := tx.First(&adj, adjustmentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundError("delete adjustment", "adjustment %d not found", adjustmentID)
		}
		if err != nil {
			return wrapDB("delete adjustment", err)
		}
		if err := DecreaseStudentBalance(tx, adj.StudentID, adj.BalanceDiff()); err != nil {
			return err
		}
		return wrapDB("delete adjustment", tx.Delete(&adj).Error)
	})
}
