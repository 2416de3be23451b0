// Package kafkafeed consumes trigger events from a Kafka topic through
// watermill.
package kafkafeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/feed"
)

// DefaultTopic is the topic the host application publishes business events to.
const DefaultTopic = "jobdeck.automation.triggers"

type Receiver struct {
	subscriber message.Subscriber
	topic      string
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewReceiver(subscriber message.Subscriber, topic string, logger *slog.Logger) *Receiver {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Receiver{
		subscriber: subscriber,
		topic:      topic,
		logger: logger.With(
			"module", "kafka_feed",
			"topic", topic,
		),
	}
}

// Start consumes the topic until the context is cancelled. Handler failures
// nack the message so the broker redelivers it.
func (r *Receiver) Start(ctx context.Context, handler feed.Handler) error {
	messages, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return err
	}

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		for msg := range messages {
			r.process(ctx, msg, handler)
		}
	}()

	r.logger.Info("Kafka feed receiver started")

	return nil
}

func (r *Receiver) process(ctx context.Context, msg *message.Message, handler feed.Handler) {
	var event events.TriggerEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		r.logger.Error("Discarding undecodable event", "message_id", msg.UUID, "error", err)
		msg.Ack()

		return
	}

	if err := event.Validate(); err != nil {
		r.logger.Error("Discarding invalid event", "message_id", msg.UUID, "error", err)
		msg.Ack()

		return
	}

	if err := handler(ctx, &event); err != nil {
		r.logger.Error("Event handling failed",
			"trigger_type", event.TriggerType,
			"tenant_id", event.TenantID,
			"error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (r *Receiver) Close() error {
	err := r.subscriber.Close()
	r.wg.Wait()

	return err
}
