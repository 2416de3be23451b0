// Package eventbus carries execution lifecycle notifications between the
// engine and any interested consumer (UI feeds, audit sinks).
package eventbus

import (
	"context"

	"github.com/jobdeck/automation/pkg/events"
)

type EventHandler func(ctx context.Context, event any) error

type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
