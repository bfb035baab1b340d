package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/requisition-service/internal/api/http/handlers"
	"github.com/spec-kit/requisition-service/internal/auth"
	"github.com/spec-kit/requisition-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Requisitions   *handlers.RequisitionsHandler
	Steps          *handlers.StepsHandler
	AuthMiddleware fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	finance := auth.RequireRole(domain.RoleFinance, domain.RoleAdmin)
	reviewers := auth.RequireRole(domain.RoleManager, domain.RoleFinance, domain.RoleAdmin)

	reqs := app.Group("/requisitions", cfg.AuthMiddleware, auth.RequireAuthenticated())
	reqs.Post("/", cfg.Requisitions.Create)
	reqs.Get("/:id", cfg.Requisitions.Get)
	reqs.Patch("/:id", cfg.Requisitions.UpdateDraft)
	reqs.Post("/:id/submit", cfg.Requisitions.Submit)
	reqs.Post("/:id/review", reviewers, cfg.Requisitions.Review)
	reqs.Post("/:id/approve", finance, cfg.Requisitions.Approve)
	reqs.Post("/:id/reject", finance, cfg.Requisitions.Reject)
	reqs.Post("/:id/payment", finance, cfg.Requisitions.RecordPayment)
	reqs.Post("/:id/close", finance, cfg.Requisitions.Close)
	reqs.Get("/:id/financial-summary", cfg.Requisitions.FinancialSummary)
	reqs.Get("/:id/audit-trail", cfg.Requisitions.AuditTrail)
	reqs.Get("/:id/steps", cfg.Requisitions.Steps)
	reqs.Get("/:id/steps/status", cfg.Requisitions.StepStatus)

	steps := app.Group("/steps", cfg.AuthMiddleware, auth.RequireAuthenticated())
	steps.Post("/:id/approve", cfg.Steps.Approve)
	steps.Post("/:id/reject", cfg.Steps.Reject)
}
