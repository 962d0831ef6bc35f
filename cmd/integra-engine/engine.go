package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/integra/pkg/channels/kafka"
	"github.com/dukex/integra/pkg/cmd"
	"github.com/dukex/integra/pkg/definition"
	"github.com/dukex/integra/pkg/endpoint"
	"github.com/dukex/integra/pkg/idgen"
	"github.com/dukex/integra/pkg/integration"
	"github.com/dukex/integra/pkg/metrics"
	"github.com/dukex/integra/pkg/modules"
	"github.com/dukex/integra/pkg/otelhelper"
	"github.com/dukex/integra/pkg/persistence"
	"github.com/dukex/integra/pkg/protocol"
	"github.com/dukex/integra/pkg/scheduler"
	"github.com/dukex/integra/pkg/web"
)

// Config is everything an engine node needs, gathered from flags.
type Config struct {
	NodeID          string
	DataCenterID    int64
	WorkerID        int64
	DatabaseURL     string
	LockURL         string
	DefinitionsPath string
	EndpointsConfig string
	PluginsPath     string
	ScriptTimeout   time.Duration
	Channel         string
	Kafka           kafka.Config
	Scheduler       scheduler.Config
	Port            int
	Tracing         bool
}

// Engine is one node of the cluster: every integration of the definitions directory runs on
// every node, and clustered schedules are arbitrated through the shared lock store.
type Engine struct {
	config Config
	logger *slog.Logger

	persistence    persistence.Persistence
	locks          protocol.LockStore
	publisher      message.Publisher
	subscriber     message.Subscriber
	endpoints      *endpoint.Registry
	modules        *modules.Registry
	scheduler      *scheduler.Scheduler
	manager        *integration.Manager
	registry       *prometheus.Registry
	tracerProvider *sdktrace.TracerProvider
	api            *web.API
}

func NewEngine(ctx context.Context, logger *slog.Logger, config Config) (_ *Engine, err error) {
	e := &Engine{config: config, logger: logger}

	// release what was opened so far when a later step fails
	defer func() {
		if err != nil {
			if closeErr := e.Shutdown(context.WithoutCancel(ctx)); closeErr != nil {
				logger.ErrorContext(ctx, "Failed to release resources", "error", closeErr)
			}
		}
	}()

	var tracer trace.Tracer

	if config.Tracing {
		e.tracerProvider, err = otelhelper.NewTracerProvider(ctx, "integra-engine",
			attribute.String(otelhelper.NodeIDKey, config.NodeID),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = e.tracerProvider.Tracer(otelhelper.InstrumentationName)
	}

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mtr := metrics.New(e.registry)

	ids, err := idgen.New(config.DataCenterID, config.WorkerID)
	if err != nil {
		return nil, err
	}

	e.persistence, err = cmd.NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	e.locks, err = cmd.NewLockStore(ctx, logger, config.LockURL)
	if err != nil {
		return nil, err
	}

	taskManager, err := scheduler.NewTaskManager(e.locks, config.Scheduler, logger,
		scheduler.WithTracer(tracer), scheduler.WithMetrics(mtr))
	if err != nil {
		return nil, err
	}

	e.scheduler = scheduler.New(taskManager, logger)

	e.modules, err = cmd.NewModules(logger, config.PluginsPath, config.ScriptTimeout)
	if err != nil {
		return nil, err
	}

	e.publisher, e.subscriber, err = cmd.NewChannel(config.Channel, logger, config.Kafka)
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	e.endpoints = endpoint.NewRegistry(logger)

	if config.EndpointsConfig != "" {
		endpointsConfig, err := cmd.ReadEndpointsConfig(config.EndpointsConfig, validate)
		if err != nil {
			return nil, err
		}

		err = cmd.RegisterEndpoints(ctx, logger, endpointsConfig, e.endpoints, e.publisher, e.subscriber)
		if err != nil {
			return nil, err
		}
	}

	e.manager = integration.NewManager(integration.Dependencies{
		Scheduler: e.scheduler,
		Endpoints: e.endpoints,
		Modules:   e.modules,
		IDs:       ids,
		Log:       e.persistence,
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   mtr,
	})

	e.endpoints.SetTriggerer(e.manager)
	e.endpoints.OnApplicationStarted(e.manager.RebindApplication)

	if config.DefinitionsPath != "" {
		loader := definition.NewLoader(logger, validate)

		if _, err := loader.RegisterDir(config.DefinitionsPath, e.manager); err != nil {
			return nil, err
		}
	}

	e.api = web.NewAPI(logger, e.manager, e.persistence, e.endpoints, e.registry)

	return e, nil
}

// Start starts the scheduler and every registered integration.
func (e *Engine) Start(ctx context.Context) error {
	e.scheduler.Start()

	if err := e.manager.StartAll(ctx); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Engine started", "integrations", len(e.manager.List()))

	return nil
}

// Shutdown stops integrations first, then the infrastructure below them.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error

	if e.manager != nil {
		errs = append(errs, e.manager.StopAll(ctx))
	}

	if e.scheduler != nil {
		errs = append(errs, e.scheduler.Stop(ctx))
	}

	if e.endpoints != nil {
		errs = append(errs, e.endpoints.Close())
	}

	if e.publisher != nil {
		errs = append(errs, e.publisher.Close())
	}

	// gochannel is its own subscriber
	if e.subscriber != nil && any(e.subscriber) != any(e.publisher) {
		errs = append(errs, e.subscriber.Close())
	}

	if e.persistence != nil {
		errs = append(errs, e.persistence.Close(ctx))
	}

	if closer, ok := e.locks.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	if e.tracerProvider != nil {
		errs = append(errs, e.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
