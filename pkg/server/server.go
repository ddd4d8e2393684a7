package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	handlers "github.com/juttuchat/modguard/pkg/handlers/http"
	"github.com/juttuchat/modguard/pkg/infra/metrics"
	"github.com/juttuchat/modguard/pkg/middleware"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Host string
	Port int
}

type Handlers struct {
	Moderate   handlers.Handler
	UserStatus handlers.Handler
	Health     handlers.Handler
}

type Server struct {
	app    *fiber.App
	config Config
	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger, h Handlers) *Server {
	app := fiber.New()
	app.Use(middleware.NewPanicRecoverMiddleware(logger).Middleware())
	app.Use(middleware.NewRequestLoggerMiddleware(logger).Middleware())

	app.Get("/health", h.Health.Handle)

	api := app.Group("/api/v1")
	api.Post("/moderate", h.Moderate.Handle)
	api.Get("/users/:id/status", h.UserStatus.Handle)

	// Metrics are served from the same app, adapted from net/http.
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return &Server{app: app, config: config, logger: logger}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.WithField("addr", addr).Info("moderation server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
