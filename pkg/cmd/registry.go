// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/jobdeck/automation/pkg/platform"
	"github.com/jobdeck/automation/pkg/registry"
)

// NewRegistry builds the action registry with all built-in handlers bound to
// the host platform's internal API.
func NewRegistry(logger *slog.Logger, platformURL, platformToken string) *registry.Registry {
	client := platform.NewClient(platformURL, platformToken)

	reg := registry.NewRegistry(logger)
	registry.RegisterDefaults(reg, registry.Collaborators{
		Records:   client,
		Mailer:    client,
		Directory: client,
	})

	return reg
}
