package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/integra/pkg/channels/kafka"
	"github.com/dukex/integra/pkg/definition"
	"github.com/dukex/integra/pkg/log"
	"github.com/dukex/integra/pkg/modules"
	"github.com/dukex/integra/pkg/scheduler"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 30 * time.Second
)

func main() {
	defaults := scheduler.DefaultConfig()

	command := &cli.Command{
		Name:                  "integra-engine",
		Usage:                 "Run integrations on a cluster node",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "node-id",
				Aliases: []string{"id"},
				Usage:   "Node ID used in logs (auto-generated if not provided)",
				Sources: cli.EnvVars("NODE_ID"),
			},
			&cli.Int64Flag{
				Name:    "datacenter-id",
				Usage:   "Datacenter part of generated IDs (0-31)",
				Sources: cli.EnvVars("DATACENTER_ID"),
			},
			&cli.Int64Flag{
				Name:    "worker-id",
				Usage:   "Worker part of generated IDs (0-31), unique per node within a datacenter",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Transaction log URL (file://path or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "lock-url",
				Usage:   "Shared lock store URL (memory:// or redis://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("LOCK_URL"),
			},
			&cli.StringFlag{
				Name:    "definitions-path",
				Usage:   "Directory of integration definitions (.json, .yaml)",
				Value:   "./integrations",
				Sources: cli.EnvVars("DEFINITIONS_PATH"),
			},
			&cli.StringFlag{
				Name:    "endpoints-config",
				Usage:   "YAML file describing applications, connections and endpoints",
				Sources: cli.EnvVars("ENDPOINTS_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing module plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.DurationFlag{
				Name:    "script-timeout",
				Usage:   "Maximum wait for an asynchronous script to complete",
				Value:   modules.DefaultScriptTimeout,
				Sources: cli.EnvVars("SCRIPT_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "channel",
				Usage:   "Messaging provider for topic endpoints (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("CHANNEL"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "consumer-group",
				Usage:   "Kafka consumer group shared by the nodes of the cluster",
				Value:   "cg-integra",
				Sources: cli.EnvVars("CONSUMER_GROUP"),
			},
			&cli.DurationFlag{
				Name:    "jitter",
				Usage:   "Upper bound of the random delay before competing for a clustered task",
				Value:   defaults.Jitter,
				Sources: cli.EnvVars("SCHEDULER_JITTER"),
			},
			&cli.DurationFlag{
				Name:    "lease",
				Usage:   "How long a node keeps a clustered task once acquired",
				Value:   defaults.Lease,
				Sources: cli.EnvVars("SCHEDULER_LEASE"),
			},
			&cli.DurationFlag{
				Name:    "clock-skew",
				Usage:   "Maximum clock difference between nodes",
				Value:   defaults.ClockSkew,
				Sources: cli.EnvVars("SCHEDULER_CLOCK_SKEW"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the admin API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP (configured with OTEL_EXPORTER_OTLP_* variables)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			validateCommand(),
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		slog.Error("integra-engine failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	nodeID := command.String("node-id")
	if nodeID == "" {
		nodeID = "node-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("integra-engine").With("node_id", nodeID)
	logger.InfoContext(ctx, "Initializing integra engine")

	config := Config{
		NodeID:          nodeID,
		DataCenterID:    command.Int64("datacenter-id"),
		WorkerID:        command.Int64("worker-id"),
		DatabaseURL:     command.String("database-url"),
		LockURL:         command.String("lock-url"),
		DefinitionsPath: command.String("definitions-path"),
		EndpointsConfig: command.String("endpoints-config"),
		PluginsPath:     command.String("plugins-path"),
		ScriptTimeout:   command.Duration("script-timeout"),
		Channel:         command.String("channel"),
		Kafka: kafka.Config{
			Brokers:       command.StringSlice("kafka-brokers"),
			ConsumerGroup: command.String("consumer-group"),
			OTELEnabled:   command.Bool("tracing"),
		},
		Scheduler: scheduler.Config{
			Jitter:    command.Duration("jitter"),
			Lease:     command.Duration("lease"),
			ClockSkew: command.Duration("clock-skew"),
		},
		Port:    command.Int("port"),
		Tracing: command.Bool("tracing"),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := NewEngine(ctx, logger, config)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Failed to shut down cleanly", "error", err)
		}
	}()

	if err := engine.Start(ctx); err != nil {
		return err
	}

	if err := engine.api.Serve(ctx, config.Port); err != nil {
		return fmt.Errorf("admin API stopped: %w", err)
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down engine")

	return nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate integration definitions without running them",
		ArgsUsage: "[definitions-path]",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			path := command.Args().First()
			if path == "" {
				path = command.String("definitions-path")
			}

			loader := definition.NewLoader(slog.Default(), validator.New(validator.WithRequiredStructEnabled()))

			definitions, err := loader.LoadDir(path)
			if err != nil {
				return err
			}

			if len(definitions) == 0 {
				return errors.New("no definitions found in " + path)
			}

			for _, def := range definitions {
				fmt.Fprintf(command.Root().Writer, "%s: ok (%d steps)\n", def.ID, len(def.Steps))
			}

			return nil
		},
	}
}
