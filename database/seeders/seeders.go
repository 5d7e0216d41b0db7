package seeders

import (
	"academy_backoffice/database"
	"academy_backoffice/models"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedCash()
	SeedOutlayCategories()
	SeedStudyGroups()

	log.Println("Database seeding completed successfully!")
}

// SeedCash creates one zero register per payment method so the cash screen
// lists every method before its first payment.
func SeedCash() {
	methods := []models.PaymentMethod{
		models.PaymentMethodCash,
		models.PaymentMethodCard,
		models.PaymentMethodTransfer,
		models.PaymentMethodHumo,
		models.PaymentMethodUzcard,
		models.PaymentMethodClick,
		models.PaymentMethodPayme,
		models.PaymentMethodUzum,
	}
	for _, m := range methods {
		row := models.Cash{PaymentMethod: m, Amount: decimal.Zero}
		err := database.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
		if err != nil {
			log.Printf("Error seeding cash register %s: %v", m, err)
		}
	}
	log.Println("Cash registers seeded successfully")
}

// SeedOutlayCategories seeds the expense categories and their items
func SeedOutlayCategories() {
	var count int64
	database.DB.Model(&models.OutlayCategory{}).Count(&count)
	if count > 0 {
		log.Println("Outlay categories already seeded, skipping...")
		return
	}

	categories := []models.OutlayCategory{
		{
			Title:      "Office",
			Department: models.DepartmentSchool,
			Items: []models.OutlayItem{
				{Title: "Stationery"},
				{Title: "Utilities"},
				{Title: "Rent"},
			},
		},
		{
			Title:      "Kitchen",
			Department: models.DepartmentKindergarten,
			Items: []models.OutlayItem{
				{Title: "Groceries"},
				{Title: "Tableware"},
			},
		},
		{
			Title:      "Trips",
			Department: models.DepartmentCamp,
			Items: []models.OutlayItem{
				{Title: "Transport"},
				{Title: "Accommodation"},
			},
		},
	}

	for _, category := range categories {
		if err := database.DB.Create(&category).Error; err != nil {
			log.Printf("Error seeding outlay category %s: %v", category.Title, err)
		}
	}

	log.Println("Outlay categories seeded successfully")
}

// SeedStudyGroups seeds an academic year of groups
func SeedStudyGroups() {
	var count int64
	database.DB.Model(&models.StudyGroup{}).Count(&count)
	if count > 0 {
		log.Println("Study groups already seeded, skipping...")
		return
	}

	year := time.Now().Year()
	start := time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.May, 31, 0, 0, 0, 0, time.UTC)

	groups := []models.StudyGroup{
		{Name: "1-A", StartDate: start, EndDate: end, Price: decimal.NewFromInt(1500000), Department: models.DepartmentSchool},
		{Name: "2-A", StartDate: start, EndDate: end, Price: decimal.NewFromInt(1500000), Department: models.DepartmentSchool},
		{Name: "Junior", StartDate: start, EndDate: end, Price: decimal.NewFromInt(1200000), Department: models.DepartmentKindergarten},
		{
			Name:       "Summer Camp",
			StartDate:  time.Date(year+1, time.June, 1, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(year+1, time.August, 31, 0, 0, 0, 0, time.UTC),
			Price:      decimal.NewFromInt(900000),
			Department: models.DepartmentCamp,
		},
	}

	for _, group := range groups {
		if err := database.DB.Create(&group).Error; err != nil {
			log.Printf("Error seeding study group %s: %v", group.Name, err)
		}
	}

	log.Println("Study groups seeded successfully")
}
