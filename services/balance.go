package services

import (
	"context"
	"errors"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FirstAccountNumber is assigned to the very first student.
const FirstAccountNumber int64 = 1000000

// IncreaseStudentBalance adds amount to the stored balance with a single relative
// UPDATE, so concurrent writers never lose each other's deltas.
func IncreaseStudentBalance(tx *gorm.DB, studentID uint, amount decimal.Decimal) error {
	return applyBalanceDelta(tx, studentID, amount)
}

// DecreaseStudentBalance subtracts amount from the stored balance.
func DecreaseStudentBalance(tx *gorm.DB, studentID uint, amount decimal.Decimal) error {
	return applyBalanceDelta(tx, studentID, amount.Neg())
}

// applyBalanceDelta also reaches soft-deleted students: reversing a payment,
// bonus or adjustment must land on the same row the original write did.
func applyBalanceDelta(tx *gorm.DB, studentID uint, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	result := tx.Unscoped().Model(&models.Student{}).
		Where("id = ?", studentID).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return wrapDB("update student balance", result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFoundError("update student balance", "student %d not found", studentID)
	}
	logrus.WithFields(logrus.Fields{
		"student_id": studentID,
		"delta":      delta.String(),
	}).Debug("Student balance changed")
	return nil
}

// StudentBalance re-reads the stored balance of a student.
func StudentBalance(tx *gorm.DB, studentID uint) (decimal.Decimal, error) {
	var student models.Student
	err := tx.Select("id", "balance").First(&student, studentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, NotFoundError("student balance", "student %d not found", studentID)
	}
	if err != nil {
		return decimal.Zero, wrapDB("student balance", err)
	}
	return student.Balance, nil
}

// findStudent loads a non-deleted student or returns a NotFoundError.
func findStudent(tx *gorm.DB, op string, studentID uint) (*models.Student, error) {
	var student models.Student
	err := tx.First(&student, studentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundError(op, "student %d not found", studentID)
	}
	if err != nil {
		return nil, wrapDB(op, err)
	}
	return &student, nil
}

// GenerateAccountNumber returns the next free account number: the highest ever
// assigned plus one, soft-deleted students included.
func GenerateAccountNumber(tx *gorm.DB) (int64, error) {
	var last models.Student
	err := tx.Unscoped().
		Select("id", "account_number").
		Where("account_number IS NOT NULL").
		Order("account_number DESC").
		Limit(1).
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && last.AccountNumber == nil) {
		return FirstAccountNumber, nil
	}
	if err != nil {
		return 0, wrapDB("generate account number", err)
	}
	return *last.AccountNumber + 1, nil
}

// StudentService creates students with their gateway account numbers.
type StudentService struct {
	db *gorm.DB
}

func NewStudentService(db *gorm.DB) *StudentService {
	return &StudentService{db: db}
}

// CreateStudent stores a new student with a zero balance and a fresh account number.
func (s *StudentService) CreateStudent(ctx context.Context, student *models.Student) error {
	if student.FullName == "" {
		return ValidationError("create student", "full name is required")
	}
	if student.Department == "" {
		student.Department = models.DepartmentSchool
	}
	student.Balance = decimal.Zero

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := GenerateAccountNumber(tx)
		if err != nil {
			return err
		}
		student.AccountNumber = &number
		if err := tx.Create(student).Error; err != nil {
			return wrapDB("create student", err)
		}
		logrus.WithFields(logrus.Fields{
			"student_id":     student.ID,
			"account_number": number,
		}).Info("Student created")
		return nil
	})
}
