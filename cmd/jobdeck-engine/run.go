package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jobdeck/automation/pkg/cmd"
	"github.com/jobdeck/automation/pkg/engine"
	"github.com/jobdeck/automation/pkg/log"
	"github.com/jobdeck/automation/pkg/tracer"
	cli "github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Lifecycle event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "feed",
				Usage:   "Inbound event feed type (redis, kafka)",
				Value:   "redis",
				Sources: cli.EnvVars("FEED_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the redis feed",
				Value:   "redis://localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "feed-queue",
				Usage:   "Queue or topic the host application publishes events to",
				Value:   "",
				Sources: cli.EnvVars("FEED_QUEUE"),
			},
			&cli.StringFlag{
				Name:     "platform-url",
				Usage:    "Base URL of the host platform's internal API",
				Required: true,
				Sources:  cli.EnvVars("PLATFORM_URL"),
			},
			&cli.StringFlag{
				Name:    "platform-token",
				Usage:   "Bearer token for the host platform's internal API",
				Sources: cli.EnvVars("PLATFORM_TOKEN"),
			},
			&cli.DurationFlag{
				Name:    "handler-timeout",
				Usage:   "Timeout for a single action handler invocation",
				Value:   engine.DefaultHandlerTimeout,
				Sources: cli.EnvVars("HANDLER_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Attempts per action before a transient failure becomes fatal",
				Value:   engine.DefaultMaxAttempts,
				Sources: cli.EnvVars("MAX_ATTEMPTS"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for the suspension sweep",
				Value:   engine.DefaultSweepSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "sweep-batch-size",
				Usage:   "Maximum suspended executions claimed per sweep",
				Value:   engine.DefaultSweepBatchSize,
				Sources: cli.EnvVars("SWEEP_BATCH_SIZE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("jobdeck-engine").With("engine_id", engineID)

			logger.Info("Initializing automation engine")

			if command.Bool("tracing") {
				if _, err := tracer.NewTracer(ctx, "jobdeck-engine"); err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			}

			registry := cmd.NewRegistry(logger, command.String("platform-url"), command.String("platform-token"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), "jobdeck-engine", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eng := engine.NewEngine(logger, persistence, registry, eventBus, engine.Config{
				HandlerTimeout: command.Duration("handler-timeout"),
				MaxAttempts:    int(command.Int("max-attempts")),
			})

			sweeper := engine.NewSweeper(
				logger,
				eng,
				persistence,
				command.String("sweep-schedule"),
				int(command.Int("sweep-batch-size")),
			)

			receiver := cmd.NewFeedReceiver(
				command.String("feed"),
				command.String("redis-url"),
				command.String("feed-queue"),
				logger,
			)

			runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sweeper.Start(runCtx); err != nil {
				return fmt.Errorf("failed to start suspension sweep: %w", err)
			}
			defer sweeper.Stop()

			if err := receiver.Start(runCtx, eng.HandleEvent); err != nil {
				return fmt.Errorf("failed to start feed receiver: %w", err)
			}

			logger.Info("Automation engine started")

			<-runCtx.Done()

			logger.Info("Shutting down automation engine")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			done := make(chan error, 1)

			go func() {
				done <- receiver.Close()
			}()

			select {
			case err := <-done:
				return err
			case <-shutdownCtx.Done():
				logger.Warn("Feed receiver did not close in time")

				return nil
			}
		},
	}
}
