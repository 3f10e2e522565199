package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bazarkua/molexa-api/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Counts requests per key in aligned windows stored in Redis. scope separates
// the admin and stream budgets.
type FixedWindowLimiter struct {
	redis  *storage.RedisClient
	scope  string
	limit  int
	window time.Duration
	clock  func() time.Time
}

func NewFixedWindow(redis *storage.RedisClient, scope string, limit int, window time.Duration) *FixedWindowLimiter {
	if window < time.Second {
		window = time.Minute
	}

	return &FixedWindowLimiter{
		redis:  redis,
		scope:  scope,
		limit:  limit,
		window: window, // Window of time duration
		clock:  time.Now,
	}
}

func (f *FixedWindowLimiter) currentWindow() int64 {
	return f.clock().Unix() / int64(f.window.Seconds())
}

func (f *FixedWindowLimiter) key(key string, window int64) string {
	return fmt.Sprintf("molexa:ratelimit:%s:%s:%d", f.scope, key, window)
}

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := f.key(key, f.currentWindow())

	count, err := f.redis.Incr(ctx, redisKey)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := f.redis.Expire(ctx, redisKey, f.window); err != nil {
			return false, err
		}
	}

	return count <= int64(f.limit), nil
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	val, err := f.redis.Get(ctx, f.key(key, f.currentWindow()))
	if errors.Is(err, redis.Nil) {
		return f.limit, nil
	}

	if err != nil {
		return 0, err
	}

	count, _ := strconv.Atoi(val)
	remaining := f.limit - count

	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

func (f *FixedWindowLimiter) Limit() int {
	return f.limit
}

func (f *FixedWindowLimiter) Window() time.Duration {
	return f.window
}

// Returns the time at which the limit resets
func (f *FixedWindowLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	nextWindow := (f.currentWindow() + 1) * int64(f.window.Seconds())
	return time.Unix(nextWindow, 0), nil
}
