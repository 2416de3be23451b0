// Package feed defines how inbound business events reach the engine. The
// host application is the producer; receivers deliver at-least-once, and the
// engine's idempotent steps absorb redelivery.
package feed

import (
	"context"

	"github.com/jobdeck/automation/pkg/events"
)

// Handler consumes one decoded trigger event. Returning an error requeues
// the event for redelivery.
type Handler func(ctx context.Context, event *events.TriggerEvent) error

// Receiver is one inbound event transport.
type Receiver interface {
	Start(ctx context.Context, handler Handler) error
	Close() error
}
