package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jobdeck/automation/pkg/persistence"
	"github.com/jobdeck/automation/pkg/persistence/memory"
	"github.com/jobdeck/automation/pkg/persistence/postgresql"
)

// NewPersistence selects the store from the database URL scheme. Anything
// that is not postgres falls back to the in-memory store, which is only
// suitable for development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return persist
	default:
		logger.Warn("Using in-memory persistence, data will not survive restarts")

		return memory.NewPersistence()
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
