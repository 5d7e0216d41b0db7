package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

type Department string

const (
	DepartmentSchool       Department = "SCHOOL"
	DepartmentKindergarten Department = "KINDERGARTEN"
	DepartmentCamp         Department = "CAMP"
)

// Student model. Balance is a denormalized running total of every ledger record
// and is only changed through relative updates in services.
type Student struct {
	BaseModel
	FullName          string          `json:"full_name" gorm:"size:255;not null"`
	PhoneNumber       string          `json:"phone_number" gorm:"size:20"`
	ParentPhoneNumber string          `json:"parent_phone_number" gorm:"size:20"`
	Gender            string          `json:"gender" gorm:"size:20"`
	Comment           string          `json:"comment" gorm:"type:text"`
	Department        Department      `json:"department" gorm:"size:50;not null;default:'SCHOOL'"`
	Balance           decimal.Decimal `json:"balance" gorm:"type:decimal(15,2);not null;default:0"`
	AccountNumber     *int64          `json:"account_number" gorm:"uniqueIndex"`
	MarkedForDelete   bool            `json:"marked_for_delete" gorm:"default:false"`

	// Relationships
	Groups []StudentToGroup `json:"groups,omitempty" gorm:"foreignKey:StudentID"`
}

// PhoneNumbers returns the non-empty numbers that receive notifications.
func (s Student) PhoneNumbers() []string {
	phones := make([]string, 0, 2)
	for _, p := range []string{s.PhoneNumber, s.ParentPhoneNumber} {
		if p != "" {
			phones = append(phones, p)
		}
	}
	return phones
}

// StudyGroup model
type StudyGroup struct {
	BaseModel
	Name            string          `json:"name" gorm:"size:255;not null"`
	StartDate       time.Time       `json:"start_date" gorm:"type:date;not null"`
	EndDate         time.Time       `json:"end_date" gorm:"type:date;not null"`
	Price           decimal.Decimal `json:"price" gorm:"type:decimal(15,2);not null;default:0"`
	TeacherID       *uint           `json:"teacher_id"`
	Department      Department      `json:"department" gorm:"size:50;not null;default:'SCHOOL'"`
	MarkedForDelete bool            `json:"marked_for_delete" gorm:"default:false"`

	// Relationships
	Students []StudentToGroup `json:"students,omitempty" gorm:"foreignKey:GroupID"`
}

// StudentToGroup is one roster row of a study group.
type StudentToGroup struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	GroupID    uint      `json:"group_id" gorm:"not null;index"`
	StudentID  uint      `json:"student_id" gorm:"not null;index"`
	JoinedDate time.Time `json:"joined_date" gorm:"type:date;not null"`

	// Relationships
	Group   StudyGroup `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	Student Student    `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// StudentTransaction is a tuition charge for one billing period.
type StudentTransaction struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	StudentID       uint            `json:"student_id" gorm:"not null;index"`
	GroupID         uint            `json:"group_id" gorm:"not null;index"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	TransactionDate time.Time       `json:"transaction_date" gorm:"type:date;not null;index"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StudentBonus model
type StudentBonus struct {
	BaseModel
	StudentID       uint            `json:"student_id" gorm:"not null;index"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null;default:0"`
	Comment         string          `json:"comment" gorm:"type:text"`
	CreatedUserID   *uint           `json:"created_user_id"`
	MarkedForDelete bool            `json:"marked_for_delete" gorm:"default:false"`
}

// StudentBalanceAdjustment records a manual correction from OldBalance to NewBalance.
type StudentBalanceAdjustment struct {
	BaseModel
	StudentID       uint            `json:"student_id" gorm:"not null;index"`
	OldBalance      decimal.Decimal `json:"old_balance" gorm:"type:decimal(15,2);not null;default:0"`
	NewBalance      decimal.Decimal `json:"new_balance" gorm:"type:decimal(15,2);not null"`
	Comment         string          `json:"comment" gorm:"type:text"`
	CreatedUserID   *uint           `json:"created_user_id"`
	MarkedForDelete bool            `json:"marked_for_delete" gorm:"default:false"`
}

// BalanceDiff is the amount the adjustment applied to the balance.
func (a StudentBalanceAdjustment) BalanceDiff() decimal.Decimal {
	return a.NewBalance.Sub(a.OldBalance)
}
