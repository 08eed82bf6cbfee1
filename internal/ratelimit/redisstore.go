package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rg:ip:"

// RedisCounterLimiter implements ports.RateLimiter over a shared Redis
// backend, so multiple instances enforce one combined budget per key. The
// backend contract is an atomic increment-and-read with TTL: each window is
// a counter keyed by client IP that expires after the window elapses.
type RedisCounterLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisCounterLimiter connects to the shared rate-limit backend at url
// and enforces limit requests per window per key.
func NewRedisCounterLimiter(url string, limit int, window time.Duration) (*RedisCounterLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse rate-limit storage url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rate-limit backend ping: %w", err)
	}
	return &RedisCounterLimiter{client: client, limit: int64(limit), window: window}, nil
}

func (l *RedisCounterLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := redisKeyPrefix + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	if incr.Val() <= l.limit {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

func (l *RedisCounterLimiter) Close() error { return l.client.Close() }
