package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/hit-counter/internal/api/http/handlers"
	"github.com/spec-kit/hit-counter/internal/app"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Hits    *handlers.HitsHandler
	Metrics fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(router fiber.Router, cfg RouteConfig) {
	router.Get("/health/live", cfg.Health.Live)
	router.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		router.Get("/metrics", cfg.Metrics)
	}

	router.Get("/", cfg.Hits.Root)
	router.Get("/hit", cfg.Hits.Root)
	router.Get("/hit/:target", cfg.Hits.Hit)
}

// NewApp builds the fiber application serving state.
func NewApp(state *app.State) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:               state.Config.App.Name,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(server, state.Logger, state.Metrics, state.Config.App.RequestTimeout())
	RegisterRoutes(server, RouteConfig{
		Health:  handlers.NewHealthHandler(state),
		Hits:    handlers.NewHitsHandler(state),
		Metrics: state.Metrics.Handler(),
	})
	return server
}
