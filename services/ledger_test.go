package services

import (
	"context"
	"errors"
	"testing"

	"academy_backoffice/database/dbtest"
	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustmentsChain(t *testing.T) {
	db := dbtest.New(t)
	svc := NewLedgerService(db)
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	first, err := svc.CreateAdjustment(ctx, CreateAdjustmentInput{StudentID: student.ID, NewBalance: decimal.NewFromInt(100), Comment: "opening balance"})
	require.NoError(t, err)
	assert.True(t, first.OldBalance.IsZero())
	assert.True(t, first.BalanceDiff().Equal(decimal.NewFromInt(100)))

	second, err := svc.CreateAdjustment(ctx, CreateAdjustmentInput{StudentID: student.ID, NewBalance: decimal.NewFromInt(80), Comment: "correction"})
	require.NoError(t, err)
	assert.True(t, second.OldBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, second.BalanceDiff().Equal(decimal.NewFromInt(-20)))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(80)))

	// deleting the first one only takes back its own +100
	require.NoError(t, svc.DeleteAdjustment(ctx, first.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-20)))

	err = svc.DeleteAdjustment(ctx, first.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAdjustmentUnknownStudent(t *testing.T) {
	db := dbtest.New(t)
	_, err := NewLedgerService(db).CreateAdjustment(context.Background(), CreateAdjustmentInput{StudentID: 77, NewBalance: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, ErrNotFound))

	var n int64
	require.NoError(t, db.Model(&models.StudentBalanceAdjustment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestBonusRoundTrip(t *testing.T) {
	db := dbtest.New(t)
	svc := NewLedgerService(db)
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	bonus, err := svc.CreateBonus(ctx, CreateBonusInput{StudentID: student.ID, Amount: decimal.NewFromInt(25), Comment: "olympiad"})
	require.NoError(t, err)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(25)))

	require.NoError(t, svc.DeleteBonus(ctx, bonus.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())

	_, err = svc.CreateBonus(ctx, CreateBonusInput{StudentID: student.ID, Amount: decimal.Zero})
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = svc.CreateBonus(ctx, CreateBonusInput{StudentID: 404, Amount: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSetMarkedForDelete(t *testing.T) {
	db := dbtest.New(t)
	svc := NewLedgerService(db)
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	bonus, err := svc.CreateBonus(ctx, CreateBonusInput{StudentID: student.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	require.NoError(t, svc.SetMarkedForDelete(ctx, RecordBonuses, bonus.ID, true))
	// marking twice is not an error
	require.NoError(t, svc.SetMarkedForDelete(ctx, RecordBonuses, bonus.ID, true))

	var stored models.StudentBonus
	require.NoError(t, db.First(&stored, bonus.ID).Error)
	assert.True(t, stored.MarkedForDelete)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(10)), "marking never touches the balance")

	assert.True(t, errors.Is(svc.SetMarkedForDelete(ctx, RecordPayments, 404, true), ErrNotFound))
	assert.True(t, errors.Is(svc.SetMarkedForDelete(ctx, RecordKind("students"), 1, true), ErrValidation))
}
