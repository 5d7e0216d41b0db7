// Package dbtest opens a migrated throwaway SQLite database for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"academy_backoffice/database"
	"academy_backoffice/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a fresh database file under t.TempDir with every ledger table migrated.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Student inserts a student with the given account number and a zero balance.
func Student(t testing.TB, db *gorm.DB, name string, account int64) *models.Student {
	t.Helper()
	s := &models.Student{
		FullName:      name,
		PhoneNumber:   "998901234567",
		Department:    models.DepartmentSchool,
		Balance:       decimal.Zero,
		AccountNumber: &account,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// Balance re-reads the stored balance of a student.
func Balance(t testing.TB, db *gorm.DB, studentID uint) decimal.Decimal {
	t.Helper()
	var s models.Student
	require.NoError(t, db.Unscoped().Select("id", "balance").First(&s, studentID).Error)
	return s.Balance
}

// CashAmount returns the register total of one payment method, zero when absent.
func CashAmount(t testing.TB, db *gorm.DB, method models.PaymentMethod) decimal.Decimal {
	t.Helper()
	var rows []models.Cash
	require.NoError(t, db.Where("payment_method = ?", method).Find(&rows).Error)
	if len(rows) == 0 {
		return decimal.Zero
	}
	return rows[0].Amount
}
