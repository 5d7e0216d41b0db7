package controllers

import (
	"time"

	"academy_backoffice/services"
	"academy_backoffice/utils"

	"github.com/gofiber/fiber/v2"
)

// GroupController manages group rosters and the tuition charges they produce.
type GroupController struct {
	enrollment *services.EnrollmentService
}

func NewGroupController(enrollment *services.EnrollmentService) *GroupController {
	return &GroupController{enrollment: enrollment}
}

type groupStudentsRequest struct {
	StudentIDs    []uint `json:"student_ids" validate:"required,min=1,dive,required"`
	JoinedDate    string `json:"joined_date"`
	RemoveCharges bool   `json:"remove_charges"`
}

// AddStudents POST /api/groups/:id/students
func (gc *GroupController) AddStudents(c *fiber.Ctx) error {
	groupID, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req groupStudentsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ValidationErrorResponse(c, err)
	}
	joined, err := utils.ParseDate(req.JoinedDate)
	if err != nil {
		return err
	}
	if err := gc.enrollment.AddStudentsToGroup(c.UserContext(), groupID, req.StudentIDs, joined); err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Students added to group",
		"group_id": groupID,
	})
}

// SetStudents PUT /api/groups/:id/students
func (gc *GroupController) SetStudents(c *fiber.Ctx) error {
	groupID, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		StudentIDs []uint `json:"student_ids"`
		JoinedDate string `json:"joined_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	joined, err := utils.ParseDate(req.JoinedDate)
	if err != nil {
		return err
	}
	if err := gc.enrollment.UpdateGroupStudents(c.UserContext(), groupID, req.StudentIDs, joined); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "Group roster updated", "group_id": groupID})
}

// RemoveStudents DELETE /api/groups/:id/students
// Charges stay on the ledger unless remove_charges is set, which also refunds them.
func (gc *GroupController) RemoveStudents(c *fiber.Ctx) error {
	groupID, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req groupStudentsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ValidationErrorResponse(c, err)
	}
	ctx := c.UserContext()
	if err := gc.enrollment.RemoveStudentsFromGroup(ctx, groupID, req.StudentIDs); err != nil {
		return serviceError(err)
	}
	if req.RemoveCharges {
		for _, studentID := range req.StudentIDs {
			if _, err := gc.enrollment.RemoveStudentTransactionsByGroups(ctx, studentID, []uint{groupID}); err != nil {
				return serviceError(err)
			}
		}
	}
	return c.JSON(fiber.Map{"message": "Students removed from group", "group_id": groupID})
}

// Recalculate POST /api/groups/:id/recalculate
func (gc *GroupController) Recalculate(c *fiber.Ctx) error {
	groupID, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := gc.enrollment.RecalculateGroupTransactions(c.UserContext(), groupID, time.Now()); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "Group transactions recalculated", "group_id": groupID})
}
