package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	tickets := app.Group("/api/ticket", cfg.AuthMiddleware.Handle)
	tickets.Post("/create-ticket", cfg.Tickets.CreateTicket)
	tickets.Get("/get-ticket", cfg.Tickets.ListTickets)
	tickets.Get("/ticket-stat/:user_id", cfg.Stats.GetStats)
	tickets.Post("/assign", cfg.Tickets.Assign)
	tickets.Post("/self-assign", cfg.Tickets.SelfAssign)
	tickets.Post("/respond", cfg.Tickets.Respond)
	tickets.Post("/reply", cfg.Tickets.Reply)
	tickets.Post("/resolve", cfg.Tickets.Resolve)
	tickets.Post("/close", cfg.Tickets.Close)
	tickets.Get("/:ticket_id", cfg.Tickets.GetTicket)
}
