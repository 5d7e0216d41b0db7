package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"academy_backoffice/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Column headers understood by ImportPayments.
const (
	ColAccountNumber = "Account Number"
	ColAmount        = "Amount"
	ColPaymentDate   = "Payment Date"
	ColPaymentMethod = "Payment Method"
	ColComment       = "Comment"
)

type ImportResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// ReadCSVRows reads every record of a CSV upload.
func ReadCSVRows(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// ReadXLSXRows reads the first sheet of an XLSX upload.
func ReadXLSXRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		sheet = "Sheet1"
	}
	return f.GetRows(sheet)
}

func mapHeaderIndexes(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		m[strings.TrimSpace(h)] = i
	}
	return m
}

func parseImportDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02.01.2006", "02/01/2006", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ImportPayments books one INCOME (or the given type) student payment per row of
// a bank or terminal export. Bad rows are reported and skipped; the good rows
// commit together and their SMS go out afterwards.
func (s *PaymentService) ImportPayments(ctx context.Context, rows [][]string, createdUserID *uint) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, ValidationError("import payments", "file is empty")
	}
	col := mapHeaderIndexes(rows[0])
	for _, required := range []string{ColAccountNumber, ColAmount} {
		if _, ok := col[required]; !ok {
			return nil, ValidationError("import payments", "missing column: %s", required)
		}
	}

	result := &ImportResult{Errors: []string{}}
	var created []*models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 1; i < len(rows); i++ {
			r := rows[i]
			get := func(key string) string {
				if idx, ok := col[key]; ok && idx < len(r) {
					return strings.TrimSpace(r[idx])
				}
				return ""
			}
			skip := func(format string, args ...any) {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: ", i+1)+fmt.Sprintf(format, args...))
			}

			account, err := strconv.ParseInt(get(ColAccountNumber), 10, 64)
			if err != nil {
				skip("invalid account number %q", get(ColAccountNumber))
				continue
			}
			amount, err := decimal.NewFromString(strings.ReplaceAll(get(ColAmount), ",", ""))
			if err != nil {
				skip("invalid amount %q", get(ColAmount))
				continue
			}
			method := models.PaymentMethod(strings.ToUpper(get(ColPaymentMethod)))
			if method == "" {
				method = models.PaymentMethodTransfer
			}
			date := time.Now()
			if v := get(ColPaymentDate); v != "" {
				parsed, ok := parseImportDate(v)
				if !ok {
					skip("invalid payment date %q", v)
					continue
				}
				date = parsed
			}

			var student models.Student
			if err := tx.Select("id").Where("account_number = ?", account).First(&student).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					skip("no student with account number %d", account)
					continue
				}
				return wrapDB("import payments", err)
			}

			payment, err := s.CreatePaymentTx(tx, CreatePaymentInput{
				PaymentType:      models.PaymentTypeIncome,
				PaymentMethod:    method,
				PaymentModelType: models.PaymentModelStudent,
				Amount:           amount,
				PaymentDate:      date,
				StudentID:        &student.ID,
				Comment:          get(ColComment),
				CreatedUserID:    createdUserID,
			})
			if errors.Is(err, ErrValidation) {
				skip("%s", PublicMessage(err))
				continue
			}
			if err != nil {
				return err
			}
			created = append(created, payment)
			result.Inserted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range created {
		s.NotifyPaymentCreated(ctx, p)
	}
	logrus.WithFields(logrus.Fields{
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("Payments imported")
	return result, nil
}
