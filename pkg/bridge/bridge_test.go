package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherPublishesEnvelopeToPrefixedChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	ctx := context.Background()
	publisher, err := NewRedisPublisher(ctx, Config{RedisURL: "redis://" + mr.Addr(), ChannelPrefix: "test:"})
	require.NoError(t, err)
	defer publisher.Close()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	pubsub := sub.Subscribe(ctx, "test:OrderCreated")
	defer pubsub.Close()
	_, err = pubsub.Receive(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = publisher.Publish(ctx, "OrderCreated", map[string]string{"id": "order-1"})
	}()

	select {
	case msg := <-pubsub.Channel():
		var env envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		require.Equal(t, "OrderCreated", env.EventType)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a published message")
	}
}

func TestNewRedisPublisherFailsOnUnreachableRedis(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), Config{RedisURL: "redis://127.0.0.1:1"})
	require.Error(t, err)
}
