package controllers

import (
	"academy_backoffice/services"
	"academy_backoffice/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// LedgerController exposes bonuses, balance adjustments and review flags.
type LedgerController struct {
	ledger *services.LedgerService
}

func NewLedgerController(ledger *services.LedgerService) *LedgerController {
	return &LedgerController{ledger: ledger}
}

type createBonusRequest struct {
	StudentID uint            `json:"student_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Comment   string          `json:"comment" validate:"max=2000"`
}

// CreateBonus POST /api/bonuses
func (lc *LedgerController) CreateBonus(c *fiber.Ctx) error {
	var req createBonusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ValidationErrorResponse(c, err)
	}
	bonus, err := lc.ledger.CreateBonus(c.UserContext(), services.CreateBonusInput{
		StudentID:     req.StudentID,
		Amount:        req.Amount,
		Comment:       utils.SanitizeString(req.Comment),
		CreatedUserID: currentUserID(c),
	})
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"bonus": utils.ToBonusDTO(*bonus)})
}

// DeleteBonus DELETE /api/bonuses/:id
func (lc *LedgerController) DeleteBonus(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := lc.ledger.DeleteBonus(c.UserContext(), id); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "Bonus deleted"})
}

type createAdjustmentRequest struct {
	StudentID  uint            `json:"student_id" validate:"required"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Comment    string          `json:"comment" validate:"required,max=2000"`
}

// CreateAdjustment POST /api/adjustments
func (lc *LedgerController) CreateAdjustment(c *fiber.Ctx) error {
	var req createAdjustmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ValidationErrorResponse(c, err)
	}
	adj, err := lc.ledger.CreateAdjustment(c.UserContext(), services.CreateAdjustmentInput{
		StudentID:     req.StudentID,
		NewBalance:    req.NewBalance,
		Comment:       utils.SanitizeString(req.Comment),
		CreatedUserID: currentUserID(c),
	})
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"adjustment": utils.ToAdjustmentDTO(*adj)})
}

// DeleteAdjustment DELETE /api/adjustments/:id
func (lc *LedgerController) DeleteAdjustment(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := lc.ledger.DeleteAdjustment(c.UserContext(), id); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "Adjustment deleted"})
}

type markRequest struct {
	MarkedForDelete bool `json:"marked_for_delete"`
}

// Mark PATCH /api/:kind/:id/mark where kind is payments, bonuses or adjustments
func (lc *LedgerController) Mark(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req markRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	kind := services.RecordKind(c.Params("kind"))
	if err := lc.ledger.SetMarkedForDelete(c.UserContext(), kind, id, req.MarkedForDelete); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{
		"id":                id,
		"kind":              kind,
		"marked_for_delete": req.MarkedForDelete,
	})
}
