package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"academy_backoffice/database/dbtest"
	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newGroup(t *testing.T, db *gorm.DB, name string, start, end time.Time, price int64) *models.StudyGroup {
	t.Helper()
	g := &models.StudyGroup{
		Name:       name,
		StartDate:  start,
		EndDate:    end,
		Price:      decimal.NewFromInt(price),
		Department: models.DepartmentSchool,
	}
	require.NoError(t, db.Create(g).Error)
	return g
}

func newEnrollmentService(db *gorm.DB, today time.Time) *EnrollmentService {
	svc := NewEnrollmentService(db)
	svc.now = func() time.Time { return today }
	return svc
}

func countCharges(t *testing.T, db *gorm.DB, studentID, groupID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.StudentTransaction{}).
		Where("student_id = ? AND group_id = ?", studentID, groupID).Count(&n).Error)
	return n
}

func TestEnrollChargesCurrentMonth(t *testing.T) {
	db := dbtest.New(t)
	today := date(2024, 3, 14)
	svc := newEnrollmentService(db, today)
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	group := newGroup(t, db, "1-A", date(2023, 9, 1), date(2024, 5, 31), 100)

	joined := date(2024, 3, 1)
	require.NoError(t, svc.AddStudentToGroups(context.Background(), student.ID, []uint{group.ID}, &joined))

	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, int64(1), countCharges(t, db, student.ID, group.ID))

	// enrolling again is a no-op
	require.NoError(t, svc.AddStudentToGroups(context.Background(), student.ID, []uint{group.ID}, &joined))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, int64(1), countCharges(t, db, student.ID, group.ID))
}

func TestEnrollBackdatedChargesEveryMonth(t *testing.T) {
	db := dbtest.New(t)
	svc := newEnrollmentService(db, date(2024, 3, 14))
	a := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	b := dbtest.Student(t, db, "Bekzod Aliyev", 1000001)
	group := newGroup(t, db, "1-A", date(2024, 1, 1), date(2024, 5, 31), 250)

	// no joined date: members join at the group start
	require.NoError(t, svc.AddStudentsToGroup(context.Background(), group.ID, []uint{a.ID, b.ID}, nil))

	for _, s := range []*models.Student{a, b} {
		assert.Equal(t, int64(3), countCharges(t, db, s.ID, group.ID))
		assert.True(t, dbtest.Balance(t, db, s.ID).Equal(decimal.NewFromInt(-750)))
	}
}

func TestEnrollUnknownGroupRollsBack(t *testing.T) {
	db := dbtest.New(t)
	svc := newEnrollmentService(db, date(2024, 3, 14))
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	group := newGroup(t, db, "1-A", date(2024, 1, 1), date(2024, 5, 31), 100)

	err := svc.AddStudentToGroups(context.Background(), student.ID, []uint{group.ID, 999}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var memberships int64
	require.NoError(t, db.Model(&models.StudentToGroup{}).Count(&memberships).Error)
	assert.Zero(t, memberships)
	assert.Zero(t, countCharges(t, db, student.ID, group.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())
}

func TestRemoveStudentKeepsCharges(t *testing.T) {
	db := dbtest.New(t)
	svc := newEnrollmentService(db, date(2024, 3, 14))
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	group := newGroup(t, db, "1-A", date(2024, 3, 1), date(2024, 5, 31), 100)

	require.NoError(t, svc.AddStudentToGroups(ctx, student.ID, []uint{group.ID}, nil))
	require.NoError(t, svc.RemoveStudentFromGroups(ctx, student.ID, []uint{group.ID}))

	var memberships int64
	require.NoError(t, db.Model(&models.StudentToGroup{}).Count(&memberships).Error)
	assert.Zero(t, memberships)
	assert.Equal(t, int64(1), countCharges(t, db, student.ID, group.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-100)))

	refunded, err := svc.RemoveStudentTransactionsByGroups(ctx, student.ID, []uint{group.ID})
	require.NoError(t, err)
	assert.True(t, refunded.Equal(decimal.NewFromInt(100)))
	assert.Zero(t, countCharges(t, db, student.ID, group.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())
}

func TestUpdateStudentGroups(t *testing.T) {
	db := dbtest.New(t)
	svc := newEnrollmentService(db, date(2024, 3, 14))
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	g1 := newGroup(t, db, "1-A", date(2024, 3, 1), date(2024, 5, 31), 100)
	g2 := newGroup(t, db, "English", date(2024, 3, 1), date(2024, 5, 31), 40)

	require.NoError(t, svc.UpdateStudentGroups(ctx, student.ID, []uint{g1.ID}, nil))
	require.NoError(t, svc.UpdateStudentGroups(ctx, student.ID, []uint{g2.ID, g2.ID}, nil))

	var groups []uint
	require.NoError(t, db.Model(&models.StudentToGroup{}).Where("student_id = ?", student.ID).Pluck("group_id", &groups).Error)
	assert.Equal(t, []uint{g2.ID}, groups)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-140)))
}

func TestUpdateStudentGroupsIsAllOrNothing(t *testing.T) {
	db := dbtest.New(t)
	svc := newEnrollmentService(db, date(2024, 3, 14))
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	group := newGroup(t, db, "1-A", date(2024, 3, 1), date(2024, 5, 31), 100)
	require.NoError(t, svc.UpdateStudentGroups(ctx, student.ID, []uint{group.ID}, nil))

	err := svc.UpdateStudentGroups(ctx, student.ID, []uint{999}, nil)
	require.True(t, errors.Is(err, ErrNotFound))

	var groups []uint
	require.NoError(t, db.Model(&models.StudentToGroup{}).Where("student_id = ?", student.ID).Pluck("group_id", &groups).Error)
	assert.Equal(t, []uint{group.ID}, groups, "removal rolled back with the failed add")
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-100)))
}

func TestUpdateGroupStudentsIsAllOrNothing(t *testing.T) {
	db := dbtest.New(t)
	svc := newEnrollmentService(db, date(2024, 3, 14))
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	group := newGroup(t, db, "1-A", date(2024, 3, 1), date(2024, 5, 31), 100)
	require.NoError(t, svc.UpdateGroupStudents(ctx, group.ID, []uint{student.ID}, nil))

	err := svc.UpdateGroupStudents(ctx, group.ID, []uint{999}, nil)
	require.True(t, errors.Is(err, ErrNotFound))

	var students []uint
	require.NoError(t, db.Model(&models.StudentToGroup{}).Where("group_id = ?", group.ID).Pluck("student_id", &students).Error)
	assert.Equal(t, []uint{student.ID}, students)
}

func TestDiffIDs(t *testing.T) {
	added, removed := diffIDs([]uint{1, 2, 3}, []uint{3, 4, 4, 5})
	assert.Equal(t, []uint{4, 5}, added)
	assert.Equal(t, []uint{1, 2}, removed)

	added, removed = diffIDs(nil, nil)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestRecalculateGroupTransactions(t *testing.T) {
	db := dbtest.New(t)
	today := date(2024, 4, 10)
	svc := newEnrollmentService(db, today)
	ctx := context.Background()
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	group := newGroup(t, db, "1-A", date(2024, 1, 1), date(2024, 5, 31), 100)

	// Jan..Apr
	require.NoError(t, svc.AddStudentToGroups(ctx, student.ID, []uint{group.ID}, nil))
	require.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-400)))

	// the group actually starts in February and a March charge went missing
	require.NoError(t, db.Model(group).Update("start_date", date(2024, 2, 1)).Error)
	require.NoError(t, db.Where("student_id = ? AND transaction_date = ?", student.ID, date(2024, 3, 1)).
		Delete(&models.StudentTransaction{}).Error)
	require.NoError(t, db.Model(&models.Student{}).Where("id = ?", student.ID).
		UpdateColumn("balance", gorm.Expr("balance + ?", decimal.NewFromInt(100))).Error)

	require.NoError(t, svc.RecalculateGroupTransactions(ctx, group.ID, today))

	var months []time.Time
	require.NoError(t, db.Model(&models.StudentTransaction{}).Where("student_id = ?", student.ID).
		Order("transaction_date").Pluck("transaction_date", &months).Error)
	require.Len(t, months, 3)
	assert.Equal(t, time.February, months[0].Month())
	assert.Equal(t, time.March, months[1].Month())
	assert.Equal(t, time.April, months[2].Month())
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-300)))

	// running it again changes nothing
	require.NoError(t, svc.RecalculateGroupTransactions(ctx, group.ID, today))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-300)))
}

func TestChargeActiveGroupsIsIdempotent(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := newEnrollmentService(db, date(2024, 3, 14))
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	running := newGroup(t, db, "1-A", date(2024, 1, 1), date(2024, 5, 31), 100)
	finished := newGroup(t, db, "Winter camp", date(2023, 12, 1), date(2024, 2, 28), 80)

	joined := date(2024, 3, 1)
	require.NoError(t, svc.AddStudentToGroups(ctx, student.ID, []uint{running.ID}, &joined))
	require.NoError(t, db.Create(&models.StudentToGroup{GroupID: finished.ID, StudentID: student.ID, JoinedDate: date(2023, 12, 1)}).Error)

	// March is already charged by the enrollment
	created, err := svc.ChargeActiveGroups(ctx, date(2024, 3, 15))
	require.NoError(t, err)
	assert.Zero(t, created)

	created, err = svc.ChargeActiveGroups(ctx, date(2024, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	created, err = svc.ChargeActiveGroups(ctx, date(2024, 4, 2))
	require.NoError(t, err)
	assert.Zero(t, created)

	assert.Equal(t, int64(2), countCharges(t, db, student.ID, running.ID))
	assert.Zero(t, countCharges(t, db, student.ID, finished.ID))
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-200)))
}

func TestChargeActiveGroupsWaitsForJoinedMonth(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := newEnrollmentService(db, date(2024, 3, 10))
	student := dbtest.Student(t, db, "Aziza Karimova", 1000000)
	group := newGroup(t, db, "1-A", date(2024, 1, 1), date(2024, 8, 31), 100)

	joined := date(2024, 5, 1)
	require.NoError(t, svc.AddStudentToGroups(ctx, student.ID, []uint{group.ID}, &joined))
	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())

	created, err := svc.ChargeActiveGroups(ctx, date(2024, 3, 15))
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.True(t, dbtest.Balance(t, db, student.ID).IsZero())

	created, err = svc.ChargeActiveGroups(ctx, date(2024, 5, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.True(t, dbtest.Balance(t, db, student.ID).Equal(decimal.NewFromInt(-100)))
}
