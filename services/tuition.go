package services

import (
	"time"

	"academy_backoffice/models"
)

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month at midnight UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween is the calendar month delta between two dates; days are ignored.
func MonthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

func monthKey(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// BuildTuitionCharges returns one charge per month from the joined month through
// the month of today, inclusive, priced at the group price and dated the 1st.
// Months after the group's end date are not billed. Nothing is persisted.
func BuildTuitionCharges(studentID uint, group models.StudyGroup, joinedDate, today time.Time) []models.StudentTransaction {
	last := today
	if !group.EndDate.IsZero() && group.EndDate.Before(last) {
		last = group.EndDate
	}
	months := MonthsBetween(joinedDate, last)
	if months < 0 {
		return nil
	}

	first := MonthStart(joinedDate)
	charges := make([]models.StudentTransaction, 0, months+1)
	for i := 0; i <= months; i++ {
		charges = append(charges, models.StudentTransaction{
			StudentID:       studentID,
			GroupID:         group.ID,
			Amount:          group.Price,
			TransactionDate: first.AddDate(0, i, 0),
		})
	}
	return charges
}
