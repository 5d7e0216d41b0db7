package services

import (
	"context"
	"time"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// applyCashDelta moves the register of one payment method by delta. The row is
// created on first use; an existing row is incremented in the same statement.
func applyCashDelta(tx *gorm.DB, method models.PaymentMethod, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	row := models.Cash{PaymentMethod: method, Amount: delta, UpdatedAt: time.Now()}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payment_method"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     gorm.Expr("amount + ?", delta),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
	return wrapDB("update cash", err)
}

// ListCash returns every cash register ordered by payment method.
func (s *PaymentService) ListCash(ctx context.Context) ([]models.Cash, error) {
	var rows []models.Cash
	err := s.db.WithContext(ctx).Order("payment_method").Find(&rows).Error
	if err != nil {
		return nil, wrapDB("list cash", err)
	}
	return rows, nil
}
