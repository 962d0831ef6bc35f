package web

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukex/integra/pkg/integration"
	"github.com/dukex/integra/pkg/persistence"
)

type API struct {
	logger       *slog.Logger
	manager      *integration.Manager
	persistence  persistence.Persistence
	applications Applications
	gatherer     prometheus.Gatherer
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	manager *integration.Manager,
	persistence persistence.Persistence,
	applications Applications,
	gatherer prometheus.Gatherer,
) *API {
	return &API{
		logger:       logger,
		manager:      manager,
		persistence:  persistence,
		applications: applications,
		gatherer:     gatherer,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := NewAPIHandlers(a.manager, a.persistence, a.applications, a.validate)

	app := fiber.New()
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	if a.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	i := app.Group("/integrations")
	i.Get("/", handlers.GetIntegrations)
	i.Get("/:id", handlers.GetIntegration)
	i.Delete("/:id", handlers.DeleteIntegration)
	i.Post("/:id/start", handlers.StartIntegration)
	i.Post("/:id/stop", handlers.StopIntegration)
	i.Post("/:id/instances", handlers.RunInstance)
	i.Post("/:id/probe", handlers.Probe)
	i.Post("/:id/probe/:transactionId", handlers.ProbeNext)
	i.Put("/:id/config", handlers.UpdateConfig)
	i.Put("/:id/steps/:stepId/message", handlers.UpdateStepMessage)

	t := app.Group("/transactions")
	t.Get("/", handlers.GetTransactions)
	t.Get("/:id", handlers.GetTransaction)
	t.Get("/:id/steps", handlers.GetTransactionSteps)

	if a.applications != nil {
		apps := app.Group("/applications")
		apps.Post("/:id/start", handlers.StartApplication)
		apps.Post("/:id/stop", handlers.StopApplication)
	}

	return app
}

// Serve listens on port until ctx is done.
func (a *API) Serve(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down admin API", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Starting admin API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
