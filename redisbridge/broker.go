package redisbridge

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Broker is the pub/sub backend of a Bridge.
type Broker interface {
	// Publish sends payload to every subscriber of channel.
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe calls deliver for every payload published to channel until
	// ctx is done. It blocks.
	Subscribe(ctx context.Context, channel string, deliver func(payload string)) error
}

// RedisBroker is a Broker backed by Redis PUBLISH and SUBSCRIBE.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an existing Redis client. The caller keeps ownership
// of the client and closes it.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	broker := NewRedisBroker(client)
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish implements Broker.
func (r *RedisBroker) Publish(ctx context.Context, channel, payload string) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}

	return nil
}

// Subscribe implements Broker.
func (r *RedisBroker) Subscribe(ctx context.Context, channel string, deliver func(payload string)) error {
	ps := r.client.Subscribe(ctx, channel)
	defer ps.Close()

	// Wait for the subscription to be confirmed so connection errors surface
	// here instead of as a silently closed channel.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("redis subscribe to %s: %w", channel, err)
	}

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			deliver(msg.Payload)
		}
	}
}
