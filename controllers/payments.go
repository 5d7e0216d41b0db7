package controllers

import (
	"strings"
	"time"

	"academy_backoffice/models"
	"academy_backoffice/services"
	"academy_backoffice/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// PaymentController exposes payment booking and cash registers.
type PaymentController struct {
	payments *services.PaymentService
}

func NewPaymentController(payments *services.PaymentService) *PaymentController {
	return &PaymentController{payments: payments}
}

type createPaymentRequest struct {
	PaymentType      string          `json:"payment_type" validate:"required,oneof=INCOME OUTCOME"`
	PaymentMethod    string          `json:"payment_method" validate:"required"`
	PaymentModelType string          `json:"payment_model_type" validate:"required,oneof=STUDENT OUTLAY"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentDate      string          `json:"payment_date"`
	StudentID        *uint           `json:"student_id"`
	OutlayID         *uint           `json:"outlay_id"`
	Comment          string          `json:"comment" validate:"max=2000"`
}

// CreatePayment POST /api/payments
func (pc *PaymentController) CreatePayment(c *fiber.Ctx) error {
	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ValidationErrorResponse(c, err)
	}
	date, err := utils.ParseDate(req.PaymentDate)
	if err != nil {
		return err
	}
	in := services.CreatePaymentInput{
		PaymentType:      models.PaymentType(req.PaymentType),
		PaymentMethod:    models.PaymentMethod(strings.ToUpper(req.PaymentMethod)),
		PaymentModelType: models.PaymentModelType(req.PaymentModelType),
		Amount:           req.Amount,
		StudentID:        req.StudentID,
		OutlayID:         req.OutlayID,
		Comment:          utils.SanitizeString(req.Comment),
		CreatedUserID:    currentUserID(c),
	}
	if date != nil {
		in.PaymentDate = *date
	}

	payment, err := pc.payments.CreatePayment(c.UserContext(), in)
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment": utils.ToPaymentDTO(*payment),
	})
}

// DeletePayment DELETE /api/payments/:id
func (pc *PaymentController) DeletePayment(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := pc.payments.DeletePayment(c.UserContext(), id); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "Payment deleted"})
}

// Summary GET /api/payments/summary?date_from=&date_to=
func (pc *PaymentController) Summary(c *fiber.Ctx) error {
	from, err := utils.ParseDate(c.Query("date_from"))
	if err != nil {
		return err
	}
	to, err := utils.ParseDate(c.Query("date_to"))
	if err != nil {
		return err
	}
	if to != nil {
		// include entire day
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	summary, err := pc.payments.PaymentSummary(c.UserContext(), services.PaymentFilter{From: from, To: to})
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(summary)
}

// ListCash GET /api/cash
func (pc *PaymentController) ListCash(c *fiber.Ctx) error {
	rows, err := pc.payments.ListCash(c.UserContext())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"cash": utils.ToCashDTOs(rows)})
}

// Import POST /api/payments/import
// Multipart form with file field: file (csv or xlsx)
func (pc *PaymentController) Import(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot open file"})
	}
	defer f.Close()

	var rows [][]string
	filename := strings.ToLower(fh.Filename)
	switch {
	case strings.HasSuffix(filename, ".csv"):
		rows, err = services.ReadCSVRows(f)
	case strings.HasSuffix(filename, ".xlsx"):
		rows, err = services.ReadXLSXRows(f)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported file type (csv,xlsx)"})
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := pc.payments.ImportPayments(c.UserContext(), rows, currentUserID(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(result)
}
