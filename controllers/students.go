package controllers

import (
	"academy_backoffice/models"
	"academy_backoffice/services"
	"academy_backoffice/utils"

	"github.com/gofiber/fiber/v2"
)

// StudentController creates students and manages their group set.
type StudentController struct {
	students   *services.StudentService
	enrollment *services.EnrollmentService
}

func NewStudentController(students *services.StudentService, enrollment *services.EnrollmentService) *StudentController {
	return &StudentController{students: students, enrollment: enrollment}
}

type createStudentRequest struct {
	FullName          string `json:"full_name" validate:"required,max=255"`
	PhoneNumber       string `json:"phone_number" validate:"max=20"`
	ParentPhoneNumber string `json:"parent_phone_number" validate:"max=20"`
	Gender            string `json:"gender" validate:"max=20"`
	Department        string `json:"department" validate:"omitempty,oneof=SCHOOL KINDERGARTEN CAMP"`
	Comment           string `json:"comment"`
	GroupIDs          []uint `json:"group_ids"`
	JoinedDate        string `json:"joined_date"`
}

// CreateStudent POST /api/students
// Assigns the account number used by Click and Payme and enrolls into group_ids.
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var req createStudentRequest
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

	student := models.Student{
		FullName:          utils.SanitizeString(req.FullName),
		PhoneNumber:       req.PhoneNumber,
		ParentPhoneNumber: req.ParentPhoneNumber,
		Gender:            req.Gender,
		Department:        models.Department(req.Department),
		Comment:           req.Comment,
	}
	ctx := c.UserContext()
	if err := sc.students.CreateStudent(ctx, &student); err != nil {
		return serviceError(err)
	}
	if len(req.GroupIDs) > 0 {
		if err := sc.enrollment.AddStudentToGroups(ctx, student.ID, req.GroupIDs, joined); err != nil {
			return serviceError(err)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"student": fiber.Map{
			"id":             student.ID,
			"full_name":      student.FullName,
			"account_number": student.AccountNumber,
		},
	})
}

// SetGroups PUT /api/students/:id/groups
func (sc *StudentController) SetGroups(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		GroupIDs   []uint `json:"group_ids"`
		JoinedDate string `json:"joined_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	joined, err := utils.ParseDate(req.JoinedDate)
	if err != nil {
		return err
	}
	if err := sc.enrollment.UpdateStudentGroups(c.UserContext(), id, req.GroupIDs, joined); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "Student groups updated", "student_id": id})
}
