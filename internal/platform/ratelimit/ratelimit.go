package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stepleague/internal/common"
)

// Limiter admits or rejects one event for key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// INCR the window counter, start the window on first hit, report count and remaining TTL.
var fixedWindowScript = redis.NewScript(`
    local n = redis.call("incr", KEYS[1])
    if n == 1 then
        redis.call("pexpire", KEYS[1], ARGV[1])
    end
    return {n, redis.call("pttl", KEYS[1])}
`)

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	if l.limit <= 0 {
		return nil
	}
	res, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("rate limiter: unexpected reply %v", res)
	}
	return Decide(res[0], time.Duration(res[1])*time.Millisecond, l.limit, l.window)
}

// Decide turns a window count and its remaining TTL into an admission decision.
func Decide(count int64, ttl time.Duration, limit int, window time.Duration) error {
	if count <= int64(limit) {
		return nil
	}
	if ttl <= 0 {
		ttl = window
	}
	return &common.RateLimitError{RetryAfter: ttl}
}

// Noop admits everything.
type Noop struct{}

func (Noop) Allow(context.Context, string) error { return nil }
