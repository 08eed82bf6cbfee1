package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginBackoff_NoBackoffBelowThreshold(t *testing.T) {
	b := NewLoginBackoff()
	for i := 0; i < 4; i++ {
		locked, _, err := b.RecordFailure(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, locked)
	}
}

func TestLoginBackoff_EscalatesAtThresholds(t *testing.T) {
	b := NewLoginBackoff()
	var lastBackoff int
	for i := 1; i <= 10; i++ {
		locked, backoff, err := b.RecordFailure(context.Background(), "user-1")
		require.NoError(t, err)
		if i >= 5 {
			assert.True(t, locked)
			assert.GreaterOrEqual(t, int(backoff.Seconds()), lastBackoff)
			lastBackoff = int(backoff.Seconds())
		}
	}
	locked, backoff, err := b.IsLocked(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 600, int(backoff.Round(time.Second).Seconds()))
}

func TestLoginBackoff_SuccessClearsRecord(t *testing.T) {
	b := NewLoginBackoff()
	for i := 0; i < 5; i++ {
		_, _, _ = b.RecordFailure(context.Background(), "user-1")
	}
	require.NoError(t, b.RecordSuccess(context.Background(), "user-1"))

	locked, _, err := b.IsLocked(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, locked)
}
