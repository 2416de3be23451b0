package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jobdeck/automation/pkg/channels/kafka"
	"github.com/jobdeck/automation/pkg/feed"
	"github.com/jobdeck/automation/pkg/feed/kafkafeed"
	"github.com/jobdeck/automation/pkg/feed/redisfeed"
	redis "github.com/redis/go-redis/v9"
)

// NewFeedReceiver creates the inbound event receiver for the given provider.
// The redis provider reads its connection from redisURL; the kafka provider
// reads KAFKA_BROKERS.
func NewFeedReceiver(provider, redisURL, queue string, logger *slog.Logger) feed.Receiver {
	switch provider {
	case "redis":
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(fmt.Errorf("invalid redis URL: %w", err))
		}

		return redisfeed.NewReceiver(redis.NewClient(opts), queue, logger)
	case "kafka":
		_, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "feed")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka subscriber: %w", err))
		}

		return kafkafeed.NewReceiver(sub, queue, logger)
	default:
		panic("Unsupported feed provider: " + provider)
	}
}
