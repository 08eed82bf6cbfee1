package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketLimiter_AllowsWithinBurst(t *testing.T) {
	l := NewTokenBucketLimiter(1, 3)
	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestTokenBucketLimiter_RejectsBeyondBurst(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1)
	allowed, _, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, retryAfter, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter.Seconds(), 0.0)
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1)
	allowed, _, err := l.Allow(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, allowed)
}
