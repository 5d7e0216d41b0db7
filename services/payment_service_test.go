package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"academy_backoffice/database/dbtest"
	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSMS struct {
	phones []string
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []recordedSMS
	err  error
}

func (f *fakeNotifier) SendMass(ctx context.Context, phones []string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recordedSMS{phones: phones, text: text})
	return f.err
}

func uintPtr(v uint) *uint { return &v }

func TestCreateAndDeleteCashPayment(t *testing.T) {
	db := dbtest.New(t)
	notifier := &fakeNotifier{}
	svc := NewPaymentService(db, notifier, "Payment of %s received for %s")
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	payment, err := svc.CreatePayment(ctx, CreatePaymentInput{
		PaymentType:      models.PaymentTypeIncome,
		PaymentMethod:    models.PaymentMethodCash,
		PaymentModelType: models.PaymentModelStudent,
		Amount:           decimal.NewFromInt(50),
		StudentID:        &student.ID,
	})
	require.NoError(t, err)
	assert.True(t, payment.StudentBalanceAfter.Equal(decimal.NewFromInt(50)))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(50)))
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCash).Equal(decimal.NewFromInt(50)))

	svc.Wait()
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, []string{"998901234567"}, notifier.sent[0].phones)
	assert.Equal(t, "Payment of 50.00 received for Aziza Karimova", notifier.sent[0].text)

	require.NoError(t, svc.DeletePayment(ctx, payment.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCash).IsZero())

	err = svc.DeletePayment(ctx, payment.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "a deleted payment cannot be deleted twice")
}

func TestOutcomePaymentRoundTrip(t *testing.T) {
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	payment, err := svc.CreatePayment(ctx, CreatePaymentInput{
		PaymentType:      models.PaymentTypeOutcome,
		PaymentMethod:    models.PaymentMethodCard,
		PaymentModelType: models.PaymentModelStudent,
		Amount:           decimal.NewFromInt(30),
		StudentID:        &student.ID,
	})
	require.NoError(t, err)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-30)))
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCard).Equal(decimal.NewFromInt(-30)))

	require.NoError(t, svc.DeletePayment(ctx, payment.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCard).IsZero())
}

func TestOutlayPaymentMovesOnlyCash(t *testing.T) {
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")
	category := models.OutlayCategory{Title: "Kitchen", Department: models.DepartmentKindergarten}
	require.NoError(t, db.Create(&category).Error)
	item := models.OutlayItem{Title: "Groceries", CategoryID: &category.ID}
	require.NoError(t, db.Create(&item).Error)

	payment, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		PaymentType:      models.PaymentTypeOutcome,
		PaymentMethod:    models.PaymentMethodCash,
		PaymentModelType: models.PaymentModelOutlay,
		Amount:           decimal.NewFromInt(70),
		OutlayID:         &item.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DepartmentKindergarten, payment.Department())
	assert.Nil(t, payment.StudentID)
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCash).Equal(decimal.NewFromInt(-70)))
}

func TestCreatePaymentValidation(t *testing.T) {
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	tests := []struct {
		name string
		in   CreatePaymentInput
		kind error
	}{
		{
			name: "zero amount",
			in: CreatePaymentInput{PaymentType: models.PaymentTypeIncome, PaymentMethod: models.PaymentMethodCash,
				PaymentModelType: models.PaymentModelStudent, Amount: decimal.Zero, StudentID: &student.ID},
			kind: ErrValidation,
		},
		{
			name: "unknown method",
			in: CreatePaymentInput{PaymentType: models.PaymentTypeIncome, PaymentMethod: "BITCOIN",
				PaymentModelType: models.PaymentModelStudent, Amount: decimal.NewFromInt(1), StudentID: &student.ID},
			kind: ErrValidation,
		},
		{
			name: "student payment without student",
			in: CreatePaymentInput{PaymentType: models.PaymentTypeIncome, PaymentMethod: models.PaymentMethodCash,
				PaymentModelType: models.PaymentModelStudent, Amount: decimal.NewFromInt(1)},
			kind: ErrValidation,
		},
		{
			name: "missing student",
			in: CreatePaymentInput{PaymentType: models.PaymentTypeIncome, PaymentMethod: models.PaymentMethodCash,
				PaymentModelType: models.PaymentModelStudent, Amount: decimal.NewFromInt(1), StudentID: uintPtr(404)},
			kind: ErrNotFound,
		},
		{
			name: "missing outlay",
			in: CreatePaymentInput{PaymentType: models.PaymentTypeOutcome, PaymentMethod: models.PaymentMethodCash,
				PaymentModelType: models.PaymentModelOutlay, Amount: decimal.NewFromInt(1), OutlayID: uintPtr(404)},
			kind: ErrNotFound,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePayment(context.Background(), tc.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}

	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCash).IsZero())
}

func TestGatewayTagIsUnique(t *testing.T) {
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	in := CreatePaymentInput{
		PaymentType:        models.PaymentTypeIncome,
		PaymentMethod:      models.PaymentMethodClick,
		PaymentModelType:   models.PaymentModelStudent,
		Amount:             decimal.NewFromInt(10),
		StudentID:          &student.ID,
		ClickTransactionID: uintPtr(9),
	}
	_, err := svc.CreatePayment(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.CreatePayment(context.Background(), in)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(10)))
}

func TestNotifierFailureKeepsPayment(t *testing.T) {
	db := dbtest.New(t)
	notifier := &fakeNotifier{err: errors.New("gateway down")}
	svc := NewPaymentService(db, notifier, "%s %s")
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	_, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		PaymentType:      models.PaymentTypeIncome,
		PaymentMethod:    models.PaymentMethodCash,
		PaymentModelType: models.PaymentModelStudent,
		Amount:           decimal.NewFromInt(5),
		StudentID:        &student.ID,
	})
	require.NoError(t, err)
	svc.Wait()
	assert.Len(t, notifier.sent, 1)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(5)))
}

type blockingNotifier struct {
	release chan struct{}
	done    chan struct{}
	ctxErr  error
}

func (b *blockingNotifier) SendMass(ctx context.Context, phones []string, text string) error {
	<-b.release
	b.ctxErr = ctx.Err()
	close(b.done)
	return nil
}

func TestSlowNotifierDoesNotDelayPayment(t *testing.T) {
	db := dbtest.New(t)
	notifier := &blockingNotifier{release: make(chan struct{}), done: make(chan struct{})}
	svc := NewPaymentService(db, notifier, "%s %s")
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	_, err := svc.CreatePayment(ctx, CreatePaymentInput{
		PaymentType:      models.PaymentTypeIncome,
		PaymentMethod:    models.PaymentMethodCash,
		PaymentModelType: models.PaymentModelStudent,
		Amount:           decimal.NewFromInt(5),
		StudentID:        &student.ID,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(5)))

	// the response is gone before the SMS goes out
	cancel()
	close(notifier.release)
	svc.Wait()
	<-notifier.done
	assert.NoError(t, notifier.ctxErr)
}

func TestPaymentSummary(t *testing.T) {
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	create := func(ptype models.PaymentType, method models.PaymentMethod, amount int64, at time.Time) {
		_, err := svc.CreatePayment(ctx, CreatePaymentInput{
			PaymentType:      ptype,
			PaymentMethod:    method,
			PaymentModelType: models.PaymentModelStudent,
			Amount:           decimal.NewFromInt(amount),
			PaymentDate:      at,
			StudentID:        &student.ID,
		})
		require.NoError(t, err)
	}
	create(models.PaymentTypeIncome, models.PaymentMethodCash, 100, date(2024, 3, 1))
	create(models.PaymentTypeIncome, models.PaymentMethodCash, 40, date(2024, 3, 5))
	create(models.PaymentTypeOutcome, models.PaymentMethodCash, 15, date(2024, 3, 6))
	create(models.PaymentTypeIncome, models.PaymentMethodCard, 60, date(2024, 4, 1))

	all, err := svc.PaymentSummary(ctx, PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Count)
	assert.True(t, all.Income.Equal(decimal.NewFromInt(200)))
	assert.True(t, all.Outcome.Equal(decimal.NewFromInt(15)))
	assert.True(t, all.Net.Equal(decimal.NewFromInt(185)))
	require.Len(t, all.Methods, 2)

	from, to := date(2024, 3, 1), date(2024, 3, 31)
	march, err := svc.PaymentSummary(ctx, PaymentFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(3), march.Count)
	require.Len(t, march.Methods, 1)
	assert.Equal(t, models.PaymentMethodCash, march.Methods[0].PaymentMethod)
	assert.True(t, march.Methods[0].Net.Equal(decimal.NewFromInt(125)))

	cash, err := svc.ListCash(ctx)
	require.NoError(t, err)
	require.Len(t, cash, 2)
	assert.Equal(t, models.PaymentMethodCard, cash[0].PaymentMethod)
	assert.True(t, cash[1].Amount.Equal(decimal.NewFromInt(125)))
}

func TestPaymentLogsStudentIDValue(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	db := dbtest.New(t)
	svc := NewPaymentService(db, nil, "%s %s")
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)

	payment, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		PaymentType:      models.PaymentTypeIncome,
		PaymentMethod:    models.PaymentMethodCash,
		PaymentModelType: models.PaymentModelStudent,
		Amount:           decimal.NewFromInt(5),
		StudentID:        &student.ID,
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeletePayment(context.Background(), payment.ID))

	var messages []string
	for _, entry := range hook.AllEntries() {
		if entry.Message != "Payment created" && entry.Message != "Payment deleted" {
			continue
		}
		messages = append(messages, entry.Message)
		assert.Equal(t, student.ID, entry.Data["student_id"], entry.Message)
	}
	assert.Equal(t, []string{"Payment created", "Payment deleted"}, messages)
}
