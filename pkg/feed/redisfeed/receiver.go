// Package redisfeed consumes trigger events from a Redis list the host
// application pushes to.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/feed"
	redis "github.com/redis/go-redis/v9"
)

// DefaultQueue is the list key used when none is configured.
const DefaultQueue = "jobdeck:automation:events"

const popTimeout = 5 * time.Second

type Receiver struct {
	client redis.UniversalClient
	queue  string
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewReceiver(client redis.UniversalClient, queue string, logger *slog.Logger) *Receiver {
	if queue == "" {
		queue = DefaultQueue
	}

	return &Receiver{
		client: client,
		queue:  queue,
		stopCh: make(chan struct{}),
		logger: logger.With(
			"module", "redis_feed",
			"queue", queue,
		),
	}
}

// Start consumes the queue until the context is cancelled or Close is
// called. Events that fail to process are pushed back for redelivery.
func (r *Receiver) Start(ctx context.Context, handler feed.Handler) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		r.consume(ctx, handler)
	}()

	r.logger.Info("Redis feed receiver started")

	return nil
}

func (r *Receiver) consume(ctx context.Context, handler feed.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		result, err := r.client.BRPop(ctx, popTimeout, r.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			if ctx.Err() != nil {
				return
			}

			r.logger.Error("Failed to pop from queue", "error", err)
			time.Sleep(time.Second)

			continue
		}

		// BRPop returns [key, value].
		if len(result) < 2 {
			continue
		}

		payload := result[1]

		var event events.TriggerEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			r.logger.Error("Discarding undecodable event", "error", err)

			continue
		}

		if err := event.Validate(); err != nil {
			r.logger.Error("Discarding invalid event", "error", err)

			continue
		}

		if err := handler(ctx, &event); err != nil {
			r.logger.Error("Event handling failed, requeueing",
				"trigger_type", event.TriggerType,
				"tenant_id", event.TenantID,
				"error", err)

			if pushErr := r.client.LPush(ctx, r.queue, payload).Err(); pushErr != nil {
				r.logger.Error("Failed to requeue event", "error", pushErr)
			}
		}
	}
}

func (r *Receiver) Close() error {
	close(r.stopCh)
	r.wg.Wait()

	return r.client.Close()
}
