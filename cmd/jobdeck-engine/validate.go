package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jobdeck/automation/pkg/cmd"
	"github.com/jobdeck/automation/pkg/log"
	"github.com/jobdeck/automation/pkg/validation"
	cli "github.com/urfave/cli/v3"
)

// ErrInvalidWorkflows is returned when validation finds error-severity issues.
var ErrInvalidWorkflows = errors.New("invalid workflows found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate every stored workflow of a tenant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "tenant-id",
				Usage:    "Tenant whose workflows are validated",
				Required: true,
				Sources:  cli.EnvVars("TENANT_ID"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("jobdeck-engine").With("action", "validate")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			// The registry is only consulted for action config schemas here,
			// so it needs no platform credentials.
			registry := cmd.NewRegistry(logger, "", "")
			validator := validation.NewValidator(logger, registry)

			workflows, err := persistence.WorkflowRepository().ListByTenant(ctx, command.String("tenant-id"))
			if err != nil {
				return fmt.Errorf("failed to fetch workflows: %w", err)
			}

			_, _ = fmt.Fprintln(os.Stdout, "Workflow Validation Results:")
			_, _ = fmt.Fprintln(os.Stdout, "============================")

			invalid := 0

			for _, workflow := range workflows {
				_, _ = fmt.Fprintf(os.Stdout, "\nWorkflow: %s (%s) [%s]\n", workflow.Name, workflow.ID, workflow.Status)

				issues, err := validator.Validate(workflow)
				if err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "  MALFORMED: %v\n", err)
					invalid++

					continue
				}

				if len(issues) == 0 {
					_, _ = fmt.Fprintln(os.Stdout, "  OK")

					continue
				}

				for _, issue := range issues {
					_, _ = fmt.Fprintf(os.Stdout, "  [%s] node=%s %s\n", issue.Severity, issue.NodeID, issue.Message)
				}

				if !validation.IsValid(issues) {
					invalid++
				}
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nValidated %d workflows, %d with errors\n", len(workflows), invalid)

			if invalid > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidWorkflows, invalid)
			}

			return nil
		},
	}
}
