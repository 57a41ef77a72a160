package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/fieldservice/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health     *handlers.HealthHandler
	Tickets    *handlers.TicketsHandler
	Entries    *handlers.EntriesHandler
	Pendencies *handlers.PendenciesHandler
	Budgets    *handlers.BudgetsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets")
	tickets.Post("", cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/complete", cfg.Tickets.Complete)
	tickets.Post("/:id/cancel", cfg.Tickets.Cancel)

	tickets.Post("/:id/entries", cfg.Entries.Create)
	tickets.Post("/:id/entries/:entryId/start", cfg.Entries.Start)
	tickets.Post("/:id/entries/:entryId/cancel", cfg.Entries.Cancel)
	tickets.Post("/:id/entries/:entryId/finalize", cfg.Entries.Finalize)

	tickets.Post("/:id/pendencies/:pendencyId/resolve", cfg.Pendencies.Resolve)

	tickets.Post("/:id/budget", cfg.Budgets.Create)
	tickets.Post("/:id/budget/send", cfg.Budgets.MarkSent)
	tickets.Post("/:id/budget/approve", cfg.Budgets.Approve)
	tickets.Post("/:id/budget/reject", cfg.Budgets.Reject)

	app.Get("/budgets/:budgetId", cfg.Budgets.Get)

	// The public form posts with a single-use token instead of headers.
	app.Post("/public/entries/submit", cfg.Entries.PublicSubmit)
}
