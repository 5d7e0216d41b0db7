package controllers

import (
	"fmt"

	"academy_backoffice/services"
	"academy_backoffice/utils"

	"github.com/gofiber/fiber/v2"
)

// ReportController serves the debit/credit history of a student.
type ReportController struct {
	reports *services.ReportService
}

func NewReportController(reports *services.ReportService) *ReportController {
	return &ReportController{reports: reports}
}

// BalanceReport GET /api/students/:id/balance-report
func (rc *ReportController) BalanceReport(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	changes, err := rc.reports.DebitCreditReport(c.UserContext(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{
		"student_id": id,
		"items":      changes,
		"total":      len(changes),
	})
}

// ExportBalanceReport GET /api/students/:id/balance-report/export
func (rc *ReportController) ExportBalanceReport(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	data, err := rc.reports.ExportDebitCreditReport(c.UserContext(), id)
	if err != nil {
		return serviceError(err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="balance_report_%d.xlsx"`, id))
	return c.Send(data)
}

// VerifyBalance GET /api/students/:id/balance-check
func (rc *ReportController) VerifyBalance(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	check, err := rc.reports.VerifyStudentBalance(c.UserContext(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(check)
}
