package services

import (
	"context"
	"errors"
	"time"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnrollmentService keeps group rosters and tuition charges in step with student balances.
type EnrollmentService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEnrollmentService(db *gorm.DB) *EnrollmentService {
	return &EnrollmentService{db: db, now: time.Now}
}

func (s *EnrollmentService) today() time.Time {
	return DateOnly(s.now())
}

func findGroup(tx *gorm.DB, op string, groupID uint) (*models.StudyGroup, error) {
	var group models.StudyGroup
	err := tx.First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundError(op, "group %d not found", groupID)
	}
	if err != nil {
		return nil, wrapDB(op, err)
	}
	return &group, nil
}

// enroll adds one roster row and the elapsed-month charges. It returns the total
// charged, or zero when the student already belongs to the group.
func enroll(tx *gorm.DB, studentID uint, group *models.StudyGroup, joinedDate *time.Time, today time.Time) (decimal.Decimal, error) {
	var existing int64
	if err := tx.Model(&models.StudentToGroup{}).
		Where("group_id = ? AND student_id = ?", group.ID, studentID).
		Count(&existing).Error; err != nil {
		return decimal.Zero, wrapDB("enroll", err)
	}
	if existing > 0 {
		return decimal.Zero, nil
	}

	joined := DateOnly(group.StartDate)
	if joinedDate != nil && !joinedDate.IsZero() {
		joined = DateOnly(*joinedDate)
	}
	membership := models.StudentToGroup{GroupID: group.ID, StudentID: studentID, JoinedDate: joined}
	if err := tx.Create(&membership).Error; err != nil {
		return decimal.Zero, wrapDB("enroll", err)
	}

	charges := BuildTuitionCharges(studentID, *group, joined, today)
	if len(charges) == 0 {
		return decimal.Zero, nil
	}
	if err := tx.CreateInBatches(&charges, 100).Error; err != nil {
		return decimal.Zero, wrapDB("enroll", err)
	}
	total := decimal.Zero
	for _, c := range charges {
		total = total.Add(c.Amount)
	}
	return total, nil
}

// AddStudentToGroups enrolls one student into several groups. The roster rows,
// the charges and the balance decrease commit together.
func (s *EnrollmentService) AddStudentToGroups(ctx context.Context, studentID uint, groupIDs []uint, joinedDate *time.Time) error {
	if len(groupIDs) == 0 {
		return nil
	}
	today := s.today()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return addStudentToGroups(tx, studentID, groupIDs, joinedDate, today)
	})
}

func addStudentToGroups(tx *gorm.DB, studentID uint, groupIDs []uint, joinedDate *time.Time, today time.Time) error {
	if len(groupIDs) == 0 {
		return nil
	}
	if _, err := findStudent(tx, "add student to groups", studentID); err != nil {
		return err
	}
	total := decimal.Zero
	for _, groupID := range groupIDs {
		group, err := findGroup(tx, "add student to groups", groupID)
		if err != nil {
			return err
		}
		charged, err := enroll(tx, studentID, group, joinedDate, today)
		if err != nil {
			return err
		}
		total = total.Add(charged)
	}
	if err := DecreaseStudentBalance(tx, studentID, total); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"student_id": studentID,
		"groups":     groupIDs,
		"charged":    total.String(),
	}).Info("Student enrolled into groups")
	return nil
}

// AddStudentsToGroup enrolls several students into one group.
func (s *EnrollmentService) AddStudentsToGroup(ctx context.Context, groupID uint, studentIDs []uint, joinedDate *time.Time) error {
	if len(studentIDs) == 0 {
		return nil
	}
	today := s.today()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return addStudentsToGroup(tx, groupID, studentIDs, joinedDate, today)
	})
}

func addStudentsToGroup(tx *gorm.DB, groupID uint, studentIDs []uint, joinedDate *time.Time, today time.Time) error {
	if len(studentIDs) == 0 {
		return nil
	}
	group, err := findGroup(tx, "add students to group", groupID)
	if err != nil {
		return err
	}
	for _, studentID := range studentIDs {
		if _, err := findStudent(tx, "add students to group", studentID); err != nil {
			return err
		}
		charged, err := enroll(tx, studentID, group, joinedDate, today)
		if err != nil {
			return err
		}
		if err := DecreaseStudentBalance(tx, studentID, charged); err != nil {
			return err
		}
	}
	logrus.WithFields(logrus.Fields{
		"group_id": groupID,
		"students": studentIDs,
	}).Info("Students enrolled into group")
	return nil
}

// RemoveStudentFromGroups deletes roster rows only. Charges already generated
// stay on the ledger; use RemoveStudentTransactionsByGroups to refund them.
func (s *EnrollmentService) RemoveStudentFromGroups(ctx context.Context, studentID uint, groupIDs []uint) error {
	return removeStudentFromGroups(s.db.WithContext(ctx), studentID, groupIDs)
}

func removeStudentFromGroups(tx *gorm.DB, studentID uint, groupIDs []uint) error {
	if len(groupIDs) == 0 {
		return nil
	}
	err := tx.Where("student_id = ? AND group_id IN ?", studentID, groupIDs).
		Delete(&models.StudentToGroup{}).Error
	return wrapDB("remove student from groups", err)
}

// RemoveStudentsFromGroup deletes roster rows of one group.
func (s *EnrollmentService) RemoveStudentsFromGroup(ctx context.Context, groupID uint, studentIDs []uint) error {
	return removeStudentsFromGroup(s.db.WithContext(ctx), groupID, studentIDs)
}

func removeStudentsFromGroup(tx *gorm.DB, groupID uint, studentIDs []uint) error {
	if len(studentIDs) == 0 {
		return nil
	}
	err := tx.Where("group_id = ? AND student_id IN ?", groupID, studentIDs).
		Delete(&models.StudentToGroup{}).Error
	return wrapDB("remove students from group", err)
}

// UpdateStudentGroups makes the student's group set equal to groupIDs. Removals
// and additions commit together.
func (s *EnrollmentService) UpdateStudentGroups(ctx context.Context, studentID uint, groupIDs []uint, joinedDate *time.Time) error {
	today := s.today()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []uint
		if err := tx.Model(&models.StudentToGroup{}).
			Where("student_id = ?", studentID).
			Pluck("group_id", &current).Error; err != nil {
			return wrapDB("update student groups", err)
		}
		added, removed := diffIDs(current, groupIDs)
		if err := removeStudentFromGroups(tx, studentID, removed); err != nil {
			return err
		}
		return addStudentToGroups(tx, studentID, added, joinedDate, today)
	})
}

// UpdateGroupStudents makes the group roster equal to studentIDs.
func (s *EnrollmentService) UpdateGroupStudents(ctx context.Context, groupID uint, studentIDs []uint, joinedDate *time.Time) error {
	today := s.today()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []uint
		if err := tx.Model(&models.StudentToGroup{}).
			Where("group_id = ?", groupID).
			Pluck("student_id", &current).Error; err != nil {
			return wrapDB("update group students", err)
		}
		added, removed := diffIDs(current, studentIDs)
		if err := removeStudentsFromGroup(tx, groupID, removed); err != nil {
			return err
		}
		return addStudentsToGroup(tx, groupID, added, joinedDate, today)
	})
}

// diffIDs returns the ids present only in wanted and the ids present only in current.
func diffIDs(current, wanted []uint) (added, removed []uint) {
	have := make(map[uint]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[uint]struct{}, len(wanted))
	for _, id := range wanted {
		if _, dup := want[id]; dup {
			continue
		}
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range current {
		if _, ok := want[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// RemoveStudentTransactionsByGroups hard-deletes the student's charges in the
// given groups and gives the charged amount back to the balance.
func (s *EnrollmentService) RemoveStudentTransactionsByGroups(ctx context.Context, studentID uint, groupIDs []uint) (decimal.Decimal, error) {
	refunded := decimal.Zero
	if len(groupIDs) == 0 {
		return refunded, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var charges []models.StudentTransaction
		if err := tx.Where("student_id = ? AND group_id IN ?", studentID, groupIDs).
			Find(&charges).Error; err != nil {
			return wrapDB("remove student transactions", err)
		}
		if len(charges) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(charges))
		for _, c := range charges {
			ids = append(ids, c.ID)
			refunded = refunded.Add(c.Amount)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.StudentTransaction{}).Error; err != nil {
			return wrapDB("remove student transactions", err)
		}
		return IncreaseStudentBalance(tx, studentID, refunded)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return refunded, nil
}

// RecalculateGroupTransactions brings a group's charges in line with its dates:
// every member gets one charge per month from the later of the group start and
// the member's joined month through min(today, end date), and charges outside
// [start month, end date] are removed and refunded.
func (s *EnrollmentService) RecalculateGroupTransactions(ctx context.Context, groupID uint, today time.Time) error {
	today = DateOnly(today)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := findGroup(tx, "recalculate group", groupID)
		if err != nil {
			return err
		}
		firstMonth := MonthStart(group.StartDate)
		endDate := DateOnly(group.EndDate)

		var charges []models.StudentTransaction
		if err := tx.Where("group_id = ?", groupID).Find(&charges).Error; err != nil {
			return wrapDB("recalculate group", err)
		}

		deltas := map[uint]decimal.Decimal{}
		existing := map[uint]map[int]bool{}
		var stale []uint
		for _, c := range charges {
			date := DateOnly(c.TransactionDate)
			if date.Before(firstMonth) || date.After(endDate) {
				stale = append(stale, c.ID)
				deltas[c.StudentID] = deltas[c.StudentID].Add(c.Amount)
				continue
			}
			if existing[c.StudentID] == nil {
				existing[c.StudentID] = map[int]bool{}
			}
			existing[c.StudentID][monthKey(date)] = true
		}
		if len(stale) > 0 {
			if err := tx.Where("id IN ?", stale).Delete(&models.StudentTransaction{}).Error; err != nil {
				return wrapDB("recalculate group", err)
			}
		}

		var members []models.StudentToGroup
		if err := tx.Joins("Student").Where("group_id = ?", groupID).Find(&members).Error; err != nil {
			return wrapDB("recalculate group", err)
		}
		var missing []models.StudentTransaction
		for _, m := range members {
			if m.Student.ID == 0 {
				continue
			}
			joined := DateOnly(m.JoinedDate)
			if joined.Before(firstMonth) {
				joined = firstMonth
			}
			for _, c := range BuildTuitionCharges(m.StudentID, *group, joined, today) {
				if existing[m.StudentID][monthKey(c.TransactionDate)] {
					continue
				}
				missing = append(missing, c)
				deltas[m.StudentID] = deltas[m.StudentID].Sub(c.Amount)
			}
		}
		if len(missing) > 0 {
			if err := tx.CreateInBatches(&missing, 100).Error; err != nil {
				return wrapDB("recalculate group", err)
			}
		}

		for studentID, delta := range deltas {
			if err := IncreaseStudentBalance(tx, studentID, delta); err != nil {
				return err
			}
		}
		logrus.WithFields(logrus.Fields{
			"group_id": groupID,
			"created":  len(missing),
			"removed":  len(stale),
		}).Info("Group transactions recalculated")
		return nil
	})
}

// ChargeActiveGroups is the daily tuition batch. Every member of a group running
// today gets the charge dated the 1st of the current month unless it exists.
// Members joining in a later month are not billed yet.
// It returns the number of charges created.
func (s *EnrollmentService) ChargeActiveGroups(ctx context.Context, today time.Time) (int, error) {
	today = DateOnly(today)
	period := MonthStart(today)
	created := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groups []models.StudyGroup
		if err := tx.Where("start_date <= ? AND end_date >= ?", today, today).
			Find(&groups).Error; err != nil {
			return wrapDB("charge active groups", err)
		}

		for _, group := range groups {
			var members []models.StudentToGroup
			if err := tx.Joins("Student").Where("group_id = ?", group.ID).
				Find(&members).Error; err != nil {
				return wrapDB("charge active groups", err)
			}
			if len(members) == 0 {
				continue
			}

			var charged []uint
			if err := tx.Model(&models.StudentTransaction{}).
				Where("group_id = ? AND transaction_date >= ? AND transaction_date < ?",
					group.ID, period, period.AddDate(0, 1, 0)).
				Pluck("student_id", &charged).Error; err != nil {
				return wrapDB("charge active groups", err)
			}
			done := make(map[uint]bool, len(charged))
			for _, id := range charged {
				done[id] = true
			}

			for _, m := range members {
				if done[m.StudentID] || m.Student.ID == 0 {
					continue
				}
				if MonthStart(m.JoinedDate).After(period) {
					continue
				}
				charge := models.StudentTransaction{
					StudentID:       m.StudentID,
					GroupID:         group.ID,
					Amount:          group.Price,
					TransactionDate: period,
				}
				if err := tx.Create(&charge).Error; err != nil {
					return wrapDB("charge active groups", err)
				}
				if err := DecreaseStudentBalance(tx, m.StudentID, group.Price); err != nil {
					return err
				}
				done[m.StudentID] = true
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"date":    today.Format("2006-01-02"),
		"created": created,
	}).Info("Daily tuition charged")
	return created, nil
}
