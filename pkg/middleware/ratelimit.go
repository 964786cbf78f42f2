package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/harborgate/orgd/pkg/httputil"
)

// RateLimitConfig bounds requests per caller over a fixed window.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig allows 120 requests per minute per caller.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 120,
		WindowDuration:    time.Minute,
	}
}

// RedisRateLimiter is a fixed-window counter shared across instances.
// Redis failures fail open so a cache outage never takes the API down
// with it.
type RedisRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisRateLimiter creates a redis-backed rate limiter.
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisRateLimiter {
	if config.RequestsPerWindow <= 0 {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{client: client, config: config, prefix: prefix}
}

// Allow increments the caller's window counter and reports whether the
// request is under the limit.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Handler wraps an HTTP handler with per-user rate limiting. Requests
// must have passed through Identity first; anonymous requests share a
// single bucket.
func (rl *RedisRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "anon"
		if userID := UserID(r.Context()); userID != 0 {
			key = strconv.FormatInt(userID, 10)
		}

		allowed, err := rl.Allow(r.Context(), key)
		if err != nil {
			// Fail open: redis being down is not the caller's problem.
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.WindowDuration.Seconds())))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
