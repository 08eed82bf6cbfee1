// Package review implements the Review State Machine (RSM): the manual
// disposition workflow an analyst drives over a flagged EvidenceRow.
package review

import (
	"context"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
	"screenguard/internal/ports"
)

const minNotesLength = 10

type Service struct {
	evidence ports.EvidenceRepository
	audit    ports.AuditSink
}

func New(evidence ports.EvidenceRepository, audit ports.AuditSink) *Service {
	return &Service{evidence: evidence, audit: audit}
}

// Claim implements UNREVIEWED -> IN_REVIEW.
func (s *Service) Claim(ctx context.Context, fp domain.Fingerprint, actor string) (domain.EvidenceRow, error) {
	if actor == "" {
		return domain.EvidenceRow{}, apperr.Invalid("actor", "actor is required")
	}
	row, err := s.evidence.ClaimReview(ctx, fp, actor)
	if err != nil {
		return domain.EvidenceRow{}, err
	}
	s.emitAudit(ctx, actor, "review_claim", fp, "claimed")
	return row, nil
}

// Complete implements IN_REVIEW -> COMPLETED, validating the outcome and the
// minimum analyst-notes length.
func (s *Service) Complete(ctx context.Context, fp domain.Fingerprint, actor string, outcome domain.ReviewOutcome, notes string) (domain.EvidenceRow, error) {
	if actor == "" {
		return domain.EvidenceRow{}, apperr.Invalid("actor", "actor is required")
	}
	if !domain.ValidReviewOutcomes[outcome] {
		return domain.EvidenceRow{}, apperr.Invalid("outcome", "unrecognized review outcome")
	}
	if len(notes) < minNotesLength {
		return domain.EvidenceRow{}, apperr.Invalid("notes", "notes must be at least 10 characters")
	}
	row, err := s.evidence.CompleteReview(ctx, fp, actor, outcome, notes)
	if err != nil {
		return domain.EvidenceRow{}, err
	}
	s.emitAudit(ctx, actor, "review_complete", fp, string(outcome))
	return row, nil
}

func (s *Service) emitAudit(ctx context.Context, actor, action string, fp domain.Fingerprint, outcome string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, ports.AuditEvent{
		Actor:       actor,
		Action:      action,
		Fingerprint: fp.String(),
		Outcome:     outcome,
	})
}
