package main

import (
	"context"

	"github.com/jobdeck/automation/pkg/cmd"
	"github.com/jobdeck/automation/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   9091,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
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

			logger := log.WithModule("jobdeck-api")

			logger.Info("Initializing automation API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			// Handlers only read action schemas from the registry, so no
			// platform credentials are needed here.
			registry := cmd.NewRegistry(logger, "", "")

			api := NewAPI(logger, persistence, registry)

			if err := api.Start(int(command.Int("port"))); err != nil {
				logger.Error("Failed to start API server", "error", err)
			}

			return nil
		},
	}
}
