package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func redisAddr() string {
	if v := os.Getenv("RELAY_TEST_REDIS_ADDR"); v != "" {
		return v
	}
	return "localhost:6379"
}

func TestRedisTransport(t *testing.T) {
	// Skip if Redis is not available
	check := redis.NewClient(&redis.Options{Addr: redisAddr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := check.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	_ = check.Close()

	tr := New(Config{Addr: redisAddr()})
	defer tr.Close()

	channel := "relay-test-" + time.Now().Format("150405.000000")
	sub, err := tr.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, tr.Publish(ctx, channel, []byte("hello")))
	select {
	case b := <-sub.Messages():
		require.Equal(t, "hello", string(b))
	case <-ctx.Done():
		t.Fatalf("timed out")
	}
}

func TestNewDoesNotDial(t *testing.T) {
	tr := New(Config{Addr: "127.0.0.1:1"})
	defer tr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, tr.Ping(ctx), "nothing listens on port 1")
}
