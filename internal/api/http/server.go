package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/observability"
)

// ServerOptions configures the fiber app.
type ServerOptions struct {
	Name           string
	RequestTimeout time.Duration
	// BodyLimit bounds request bodies in bytes; zero keeps the fiber default.
	BodyLimit int
}

// NewServer builds a fiber app with global middlewares and routes attached.
func NewServer(opts ServerOptions, logger *zap.Logger, metrics *observability.Metrics, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               opts.Name,
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, metrics, opts.RequestTimeout)
	if routes.Metrics == nil {
		routes.Metrics = metrics
	}
	RegisterRoutes(app, routes)
	return app
}
