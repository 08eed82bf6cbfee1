// Package audit implements the Audit Sink (AS): append-only structured
// event emission over the process logger. Delivery is best-effort; a
// failure to emit is itself logged rather than propagated, since audit
// logging must never block or fail the operation it describes.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"screenguard/internal/ports"
)

type Sink struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Emit(_ context.Context, e ports.AuditEvent) {
	if s.logger == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.logger.Info("audit",
		zap.String("log_type", "audit"),
		zap.Time("timestamp", e.Timestamp),
		zap.String("actor", e.Actor),
		zap.String("action", e.Action),
		zap.String("fingerprint", e.Fingerprint),
		zap.String("business_reference", e.BusinessReference),
		zap.String("reason", e.Reason),
		zap.String("outcome", e.Outcome),
		zap.String("correlation_id", e.CorrelationID),
	)
}
