// Package main provides the FlowSync API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowsync-io/flowsync/pkg/journal"
	"github.com/flowsync-io/flowsync/pkg/session"
	"github.com/flowsync-io/flowsync/pkg/web"
)

type API struct {
	logger   *slog.Logger
	registry *session.Registry
	journal  journal.Journal
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, registry *session.Registry, jrnl journal.Journal) *API {
	return &API{
		logger:   logger,
		registry: registry,
		journal:  jrnl,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.registry, a.validate, a.journal)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FlowSync API")
	})

	s := app.Group("/sessions")
	s.Post("/", handlers.OpenSession)
	s.Get("/:id", handlers.GetSessionState)
	s.Delete("/:id", handlers.CloseSession)

	s.Post("/:id/sync/enable", handlers.EnableSync)
	s.Post("/:id/sync/disable", handlers.DisableSync)
	s.Post("/:id/changes/visual", handlers.RecordVisualChange)
	s.Get("/:id/conflicts", handlers.ListConflicts)
	s.Post("/:id/conflicts/:conflictId/resolve", handlers.ResolveConflict)

	s.Post("/:id/executions", handlers.StartExecution)
	s.Get("/:id/execution", handlers.GetExecution)
	s.Get("/:id/execution/log", handlers.ExportLog)
	s.Post("/:id/messages", handlers.PostChatMessage)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
