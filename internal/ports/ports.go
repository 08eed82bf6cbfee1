// Package ports declares the interfaces services depend on, implemented by
// adapters under internal/adapters/*.
package ports

import (
	"context"
	"time"

	"screenguard/internal/domain"
	"screenguard/internal/matching"
)

// EvidenceRepository is the Evidence Store (ES).
type EvidenceRepository interface {
	// GetValid returns a row only if present and still within its validity
	// window. Read-only, no side effects.
	GetValid(ctx context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error)
	// Get returns the row regardless of validity.
	Get(ctx context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error)
	// Upsert atomically replaces the decision fields and result blob,
	// stamping last_screened_at/valid_until, and applies the review-field
	// preservation/reset rules.
	Upsert(ctx context.Context, in UpsertEvidenceInput) (domain.EvidenceRow, error)
	SearchByName(ctx context.Context, substring string, limit int) ([]domain.EvidenceRow, error)
	SearchByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error)
	// ListValid enumerates every row whose validity window is still open,
	// with no result-size clamp; the Refresh Coordinator's candidate scan
	// must cover the full valid set.
	ListValid(ctx context.Context) ([]domain.EvidenceRow, error)
	MarkFalsePositive(ctx context.Context, fp domain.Fingerprint, reason, actor string) (domain.EvidenceRow, error)
	PurgeOlderThan(ctx context.Context, months int) (int64, error)
	// ClaimReview transitions UNREVIEWED -> IN_REVIEW, recording the actor. It
	// fails with apperr.Conflict if the row is not currently UNREVIEWED.
	ClaimReview(ctx context.Context, fp domain.Fingerprint, actor string) (domain.EvidenceRow, error)
	// CompleteReview transitions IN_REVIEW -> COMPLETED, recording the
	// outcome and notes. It fails with apperr.Conflict if the row is not
	// currently IN_REVIEW, or claimed by a different actor.
	CompleteReview(ctx context.Context, fp domain.Fingerprint, actor string, outcome domain.ReviewOutcome, notes string) (domain.EvidenceRow, error)
}

// UpsertEvidenceInput carries the fields a fresh screening result writes.
type UpsertEvidenceInput struct {
	Fingerprint    domain.Fingerprint
	DisplayName    string
	NormalizedName string
	DateOfBirth    *string
	EntityType     domain.EntityType
	Result         domain.ResultBlob
	Requestor      string
	ForceRescreen  bool
}

// EnqueueOutcomeKind classifies the result of JobRepository.Enqueue.
type EnqueueOutcomeKind string

const (
	EnqueueReused         EnqueueOutcomeKind = "reused"
	EnqueueAlreadyPending EnqueueOutcomeKind = "already_pending"
	EnqueueQueued         EnqueueOutcomeKind = "queued"
)

type EnqueueOutcome struct {
	Kind       EnqueueOutcomeKind
	JobID      string
	CachedView *domain.EvidenceRow // set when Kind == EnqueueReused
}

// EnqueueInput is the payload handed to the Job Queue on enqueue.
type EnqueueInput struct {
	Fingerprint       domain.Fingerprint
	Name              string
	DOB               *string
	EntityType        domain.EntityType
	Requestor         string
	Reason            domain.ScreeningReason
	BusinessReference string
	RefreshRunID      *string
	ForceRescreen     bool
}

// JobRepository is the Job Queue (JQ).
type JobRepository interface {
	Enqueue(ctx context.Context, in EnqueueInput) (EnqueueOutcome, error)
	ClaimOne(ctx context.Context) (*domain.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, errMessage string) error
	Status(ctx context.Context, jobID string) (*domain.Job, *domain.EvidenceRow, error)
	PendingPlusRunningCount(ctx context.Context) (int, error)
	PurgeTerminalOlderThan(ctx context.Context, days int) (int64, error)
}

// RefreshRunRepository persists Refresh Coordinator (RC) run summaries.
type RefreshRunRepository interface {
	LatestUKHash(ctx context.Context) (string, bool, error)
	// LatestRowIDs returns the sorted UK-row identity set of the most recent
	// run, for the next run's added/removed delta computation.
	LatestRowIDs(ctx context.Context) ([]string, bool, error)
	Insert(ctx context.Context, run domain.RefreshRun) error
}

// UserRepository is the ambient account store backing the auth collaborator.
type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error)
}

// Matcher is the decision-rule collaborator (M).
type Matcher interface {
	Screen(ctx context.Context, in matching.MatchInput) (domain.ResultBlob, error)
}

// SnapshotLoader materializes the current watchlist snapshot consulted by
// the Matcher.
type SnapshotLoader interface {
	Load(ctx context.Context) (matching.Snapshot, error)
}

// AuditSink is the Audit Sink (AS).
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type AuditEvent struct {
	Timestamp         time.Time
	Actor             string
	Action            string
	Fingerprint       string
	BusinessReference string
	Reason            string
	Outcome           string
	CorrelationID     string
}

// RateLimiter is the Rate Governor's per-IP token-bucket contract.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// LoginBackoff is the Rate Governor's per-account login backoff contract.
type LoginBackoff interface {
	RecordFailure(ctx context.Context, account string) (locked bool, backoff time.Duration, err error)
	RecordSuccess(ctx context.Context, account string) error
	IsLocked(ctx context.Context, account string) (locked bool, backoff time.Duration, err error)
}
