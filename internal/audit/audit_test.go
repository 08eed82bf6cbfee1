package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"screenguard/internal/ports"
)

func TestEmit_WritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := New(zap.New(core))

	sink.Emit(context.Background(), ports.AuditEvent{
		Actor:       "analyst-1",
		Action:      "review_complete",
		Fingerprint: "deadbeef",
		Outcome:     "Confirmed Match – Payment Blocked",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "analyst-1", fields["actor"])
	assert.Equal(t, "review_complete", fields["action"])
	assert.Equal(t, "audit", fields["log_type"])
}

func TestEmit_NilLoggerNoPanic(t *testing.T) {
	sink := New(nil)
	sink.Emit(context.Background(), ports.AuditEvent{Action: "noop"})
}
