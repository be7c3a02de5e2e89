package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestNoop(t *testing.T) {
	var l Limiter = Noop{}
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "k")
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	assert.NoError(t, l.Reset(context.Background(), "k"))
}

func TestRedisLimiter_DisabledLimitSkipsRedis(t *testing.T) {
	// No server behind this address; a zero limit must not touch it.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "login:", 0, time.Minute, zaptest.NewLogger(t))
	ok, err := l.Allow(context.Background(), "a@example.com")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "login:", 3, time.Minute, zaptest.NewLogger(t))
	ok, err := l.Allow(context.Background(), "a@example.com")
	assert.Error(t, err)
	assert.True(t, ok, "an unreachable Redis must not lock users out")
}
