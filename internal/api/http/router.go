package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/sla-monitor/internal/api/http/handlers"
	"github.com/spec-kit/sla-monitor/internal/auth"
	"github.com/spec-kit/sla-monitor/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Ops            *handlers.OpsHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireRoles(), cfg.Users.Me)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRoles())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/sla", cfg.Tickets.SLAStatus)
	tickets.Post("/:id/classify", auth.RequireRoles(auth.TriageRoles...), cfg.Tickets.Classify)
	tickets.Post("/:id/assign", auth.RequireRoles(auth.TriageRoles...), cfg.Tickets.Assign)
	tickets.Post("/:id/reassign", auth.RequireRoles(auth.TriageRoles...), cfg.Tickets.Reassign)
	tickets.Post("/:id/reject", auth.RequireRoles(auth.TriageRoles...), cfg.Tickets.Reject)
	tickets.Post("/:id/status", auth.RequireRoles(auth.WorkRoles...), cfg.Tickets.ChangeStatus)

	app.Get("/problem-types", cfg.AuthMiddleware.Handle, auth.RequireRoles(), cfg.Tickets.ProblemTypes)

	ops := app.Group("/ops", cfg.AuthMiddleware.Handle, auth.RequireRoles(auth.OperatorRoles...))
	ops.Post("/sla-scan", cfg.Ops.RunSLAScan)
	ops.Post("/mail-ingestion", cfg.Ops.RunMailIngestion)
	ops.Get("/tasks", cfg.Ops.Tasks)
}
