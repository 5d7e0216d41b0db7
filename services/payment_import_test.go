package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"academy_backoffice/database/dbtest"
	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const importCSV = `Account Number,Amount,Payment Date,Payment Method,Comment
1000000,"1,500",2024-03-01,cash,March fee
1000001,200,05.03.2024,,bank
999,10,2024-03-01,CASH,unknown account
1000000,abc,2024-03-01,CASH,bad amount
1000001,20,2024-03-01,CRYPTO,bad method
`

func TestImportPaymentsFromCSV(t *testing.T) {
	db := dbtest.New(t)
	notifier := &fakeNotifier{}
	svc := NewPaymentService(db, notifier, "%s %s")
	a := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	b := dbtest.Student(t, db, "Bekzod Aliyev", 1000001)

	rows, err := ReadCSVRows(strings.NewReader(importCSV))
	require.NoError(t, err)

	result, err := svc.ImportPayments(context.Background(), rows, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, result.Errors, 3)

	assert.True(t, dbtest.Balance(t, db, a.ID).Equal(decimal.NewFromInt(1500)))
	assert.True(t, dbtest.Balance(t, db, b.ID).Equal(decimal.NewFromInt(200)))
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCash).Equal(decimal.NewFromInt(1500)))
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodTransfer).Equal(decimal.NewFromInt(200)))
	svc.Wait()
	assert.Len(t, notifier.sent, 2)
}

func TestImportedPaymentsAreIncome(t *testing.T) {
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	rows := [][]string{
		{ColAccountNumber, ColAmount, "Payment Type"},
		{"1000000", "300", "OUTCOME"},
	}
	result, err := svc.ImportPayments(context.Background(), rows, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	var payment models.Payment
	require.NoError(t, db.First(&payment).Error)
	assert.Equal(t, models.PaymentTypeIncome, payment.PaymentType)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(300)))
}

func TestImportPaymentsRequiresColumns(t *testing.T) {
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")

	_, err := svc.ImportPayments(context.Background(), [][]string{{"Amount"}, {"10"}}, nil)
	require.Error(t, err)
	assert.Contains(t, PublicMessage(err), ColAccountNumber)

	_, err = svc.ImportPayments(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestReadXLSXRows(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{ColAccountNumber, ColAmount}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{1000000, 250}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadXLSXRows(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1000000", "250"}, rows[1])
}
