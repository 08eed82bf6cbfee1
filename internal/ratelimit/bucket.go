// Package ratelimit implements the Rate Governor (RG): per-client-IP token
// buckets on the dispatch path, and a per-account login backoff state
// machine on the login path.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter implements ports.RateLimiter with one golang.org/x/time/rate
// limiter per key, created lazily and never evicted within process lifetime
// (acceptable for the per-IP cardinality this endpoint sees).
type TokenBucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewTokenBucketLimiter builds a limiter refilling at rps tokens/second with
// the given burst capacity, applied independently per key.
func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	res := b.Reserve()
	if !res.OK() {
		return false, 0, nil
	}
	delay := res.Delay()
	if delay > 0 {
		res.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}
