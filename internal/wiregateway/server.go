// Package wiregateway is the thin Taler Wire Gateway REST facade onto the
// persistence port (§5/§6): an external collaborator, not part of the
// EBICS/ISO 20022 core, exposing payment initiation and history to whatever
// exchange software sits in front of nexus.
package wiregateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"nexus/internal/config"
	"nexus/internal/nexusdb"
)

// Server is the Wire Gateway's HTTP server.
type Server struct {
	app    *fiber.App
	config *config.ProcessConfig
	db     nexusdb.Database
}

// New builds a Server with routes and middleware wired, but not yet
// listening.
func New(cfg *config.ProcessConfig, db nexusdb.Database) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "nexus wire gateway",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	s := &Server{app: app, config: cfg, db: db}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))
}

func (s *Server) setupRoutes() {
	h := &handler{db: s.db}
	auth := newBearerAuth(s.config.Auth)

	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/", auth.Middleware())
	api.Post("/transfer", h.Transfer)
	api.Get("/history/incoming", h.HistoryIncoming)
	api.Get("/history/outgoing", h.HistoryOutgoing)
	api.Post("/admin/add-incoming", h.AdminAddIncoming)

	s.app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not found",
			"path":  c.Path(),
		})
	})
}

// App exposes the underlying fiber app, for use with app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving the Wire Gateway on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Server.Port)
	slog.Info("wiregateway: listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("wiregateway: shutting down")
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	slog.Error("wiregateway: request error", "error", err, "path", c.Path())
	return c.Status(code).JSON(fiber.Map{
		"error":     message,
		"status":    code,
		"timestamp": time.Now().Unix(),
	})
}
