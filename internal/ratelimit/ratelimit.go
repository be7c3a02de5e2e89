// Package ratelimit throttles repeated actions, such as login attempts, per key.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// incrWindow increments the counter and starts its window on the first hit.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Limiter decides whether one more action under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Noop allows everything. It is used when no Redis address is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }
func (Noop) Reset(context.Context, string) error         { return nil }

// RedisLimiter is a fixed-window counter stored in Redis: at most limit
// actions per key in each window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewRedisLimiter creates a limiter. limit <= 0 disables limiting.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window, logger: logger}
}

// Allow counts one action for key. On Redis failure it fails open: the action
// is allowed and the error returned for logging.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	k := r.prefix + key

	count, err := incrWindow.Run(ctx, r.client, []string{k}, r.window.Milliseconds()).Int64()
	if err != nil {
		r.logger.Error("Redis script for rate limiting failed", zap.String("key", k), zap.Error(err))
		return true, fmt.Errorf("rate limit check: %w", err)
	}

	if count > int64(r.limit) {
		r.logger.Warn("Rate limit exceeded", zap.String("key", k), zap.Int64("count", count), zap.Int("limit", r.limit))
		return false, nil
	}
	return true, nil
}

// Reset deletes the counter for key, e.g. after a successful login.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}
