package routes

import (
	"academy_backoffice/controllers"

	"github.com/gofiber/fiber/v2"
)

// Controllers bundles every handler the router mounts.
type Controllers struct {
	Health   *controllers.HealthController
	Click    *controllers.ClickController
	Payme    *controllers.PaymeController
	Payments *controllers.PaymentController
	Ledger   *controllers.LedgerController
	Reports  *controllers.ReportController
	Groups   *controllers.GroupController
	Students *controllers.StudentController
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Controllers) {
	app.Get("/health", h.Health.GetHealthStatus)

	api := app.Group("/api")

	// Gateway callbacks authenticate by signature, not by session
	api.Post("/click/merchant", h.Click.Merchant)
	api.Post("/payme/merchant", h.Payme.Merchant)

	// Payments and cash
	api.Post("/payments", h.Payments.CreatePayment)
	api.Post("/payments/import", h.Payments.Import)
	api.Get("/payments/summary", h.Payments.Summary)
	api.Delete("/payments/:id", h.Payments.DeletePayment)
	api.Get("/cash", h.Payments.ListCash)

	// Bonuses and adjustments
	api.Post("/bonuses", h.Ledger.CreateBonus)
	api.Delete("/bonuses/:id", h.Ledger.DeleteBonus)
	api.Post("/adjustments", h.Ledger.CreateAdjustment)
	api.Delete("/adjustments/:id", h.Ledger.DeleteAdjustment)
	api.Patch("/:kind/:id/mark", h.Ledger.Mark) // kind: payments, bonuses or adjustments

	// Students
	api.Post("/students", h.Students.CreateStudent)
	api.Put("/students/:id/groups", h.Students.SetGroups)
	api.Get("/students/:id/balance-report", h.Reports.BalanceReport)
	api.Get("/students/:id/balance-report/export", h.Reports.ExportBalanceReport)
	api.Get("/students/:id/balance-check", h.Reports.VerifyBalance)

	// Groups
	api.Post("/groups/:id/students", h.Groups.AddStudents)
	api.Put("/groups/:id/students", h.Groups.SetStudents)
	api.Delete("/groups/:id/students", h.Groups.RemoveStudents)
	api.Post("/groups/:id/recalculate", h.Groups.Recalculate)
}
