package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// pubSubClient is the subset of *redis.Client the bus needs.
type pubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// InvalidationBus implements ports.InvalidationBus over Redis pub/sub.
// Delivery is best effort; TTLs bound staleness when a message is lost.
type InvalidationBus struct {
	client  pubSubClient
	channel string
	logger  *logrus.Logger
}

func NewInvalidationBus(client pubSubClient, channel string, logger *logrus.Logger) *InvalidationBus {
	return &InvalidationBus{client: client, channel: channel, logger: logger}
}

func (b *InvalidationBus) Publish(ctx context.Context, key string) error {
	if err := b.client.Publish(ctx, b.channel, key).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation for %s: %w", key, err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by Redis, then delivers
// keys to onEvict from a background goroutine until ctx is done.
func (b *InvalidationBus) Subscribe(ctx context.Context, onEvict func(key string)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	if b.logger != nil {
		b.logger.WithFields(logrus.Fields{"channel": b.channel}).Info("subscribed to cache invalidations")
	}

	go func() {
		defer func() {
			_ = ps.Close()
		}()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				onEvict(msg.Payload)
			}
		}
	}()
	return nil
}
