// Package bridge defines the EventMessagingPublisher contract (spec §4.6's
// optional external bridge) and a reference Redis-backed implementation.
// Grounded on the teacher's queue/redis/queue.go — the URL/KeyPrefix config
// shape and connection-test-on-construct pattern carry over directly; the
// operation itself shifts from RPush/BLPop job queueing to Redis PUBLISH,
// since a bridge broadcasts an event to any number of listeners rather than
// handing it to exactly one consumer.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventMessagingPublisher is the context-aware contract for an external
// event bridge. Its Publish takes a context, so an implementation does not
// satisfy eventbus.Publisher (which has no context parameter) directly.
type EventMessagingPublisher interface {
	Publish(ctx context.Context, eventType string, event any) error
}

// Config configures the Redis-backed bridge.
type Config struct {
	RedisURL    string // defaults to redis://localhost:6379/0
	ChannelPrefix string // defaults to "katalyst:events:"
}

// envelope is the wire payload published to Redis.
type envelope struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// RedisPublisher publishes events to a Redis pub/sub channel named
// ChannelPrefix+eventType.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher connects to Redis and verifies reachability with a
// ping, mirroring the teacher's NewQueue connection-test-on-construct
// pattern.
func NewRedisPublisher(ctx context.Context, cfg Config) (*RedisPublisher, error) {
	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "katalyst:events:"
	}

	return &RedisPublisher{client: client, prefix: prefix}, nil
}

// Close closes the underlying Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Publish marshals event and publishes it to the channel for eventType.
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %q: %w", eventType, err)
	}

	env, err := json.Marshal(envelope{EventType: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshaling envelope for %q: %w", eventType, err)
	}

	channel := p.prefix + eventType
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.client.Publish(publishCtx, channel, env).Err()
}
