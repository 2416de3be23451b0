// Package registry maps action types to their handler factories.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jobdeck/automation/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) Register(factory protocol.ActionFactory) {
	r.factories[factory.ID()] = factory
}

// Create builds a handler for the given action type from a node's config map.
func (r *Registry) Create(actionType string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	return factory.Create(config)
}

// Schema returns the JSON schema describing the config of an action type.
func (r *Registry) Schema(actionType string) (map[string]any, bool) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, false
	}

	return factory.Schema(), true
}

// ActionTypes returns the registered action types in sorted order.
func (r *Registry) ActionTypes() []string {
	types := make([]string, 0, len(r.factories))
	for actionType := range r.factories {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}
