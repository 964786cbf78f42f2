package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// AttemptLimitConfig bounds failed sensitive-check attempts per key
// within a rolling window.
type AttemptLimitConfig struct {
	MaxFailures int
	Window      time.Duration
}

// DefaultAttemptLimitConfig allows 10 failures per 15 minutes.
func DefaultAttemptLimitConfig() AttemptLimitConfig {
	return AttemptLimitConfig{
		MaxFailures: 10,
		Window:      15 * time.Minute,
	}
}

// RedisAttemptLimiter counts failed attempts in Redis so the limit is
// shared across instances.
type RedisAttemptLimiter struct {
	redis  *redis.Client
	config AttemptLimitConfig
	prefix string
}

// NewRedisAttemptLimiter creates a Redis-backed attempt limiter.
func NewRedisAttemptLimiter(client *redis.Client, config AttemptLimitConfig, prefix string) *RedisAttemptLimiter {
	if config.MaxFailures <= 0 {
		config = DefaultAttemptLimitConfig()
	}
	if prefix == "" {
		prefix = "guard"
	}
	return &RedisAttemptLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
	}
}

// Allow reports whether the key is still under the failure limit.
func (l *RedisAttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return count < l.config.MaxFailures, nil
}

// RecordFailure increments the failure counter and refreshes the
// window expiry. Uses a pipeline so both happen atomically.
func (l *RedisAttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	pipe := l.redis.Pipeline()
	pipe.Incr(ctx, l.key(key))
	pipe.Expire(ctx, l.key(key), l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Reset clears the failure count for a key.
func (l *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, l.key(key)).Err()
}

func (l *RedisAttemptLimiter) key(key string) string {
	return fmt.Sprintf("%s:attempts:%s", l.prefix, key)
}
