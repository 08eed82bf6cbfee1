// Package dispatch implements the Dispatcher (D): the request-path logic
// that validates a screening submission, derives its fingerprint, and
// decides among cache reuse, synchronous execution, and enqueueing a
// background job.
package dispatch

import (
	"context"
	"time"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
	"screenguard/internal/fingerprint"
	"screenguard/internal/matching"
	"screenguard/internal/ports"
)

const defaultSyncThreshold = 5

// Request is one screening submission.
type Request struct {
	Name              string
	DOB               string
	EntityType        domain.EntityType
	Requestor         string
	Reason            domain.ScreeningReason
	BusinessReference string
	SearchBackend     string
}

// OutcomeKind classifies how the Dispatcher served a request.
type OutcomeKind string

const (
	OutcomeCached       OutcomeKind = "cached"
	OutcomeQueued       OutcomeKind = "queued"
	OutcomeSynchronous  OutcomeKind = "synchronous"
	OutcomeAlreadyQueue OutcomeKind = "already_pending"
)

// Outcome is what the Dispatcher decided for a request.
type Outcome struct {
	Kind        OutcomeKind
	Fingerprint domain.Fingerprint
	Evidence    *domain.EvidenceRow // set for Cached and Synchronous
	JobID       string              // set for Queued and AlreadyPending
}

// Service is the Dispatcher.
type Service struct {
	evidence      ports.EvidenceRepository
	jobs          ports.JobRepository
	matcher       ports.Matcher
	audit         ports.AuditSink
	syncThreshold int
	inlineOnly    bool
}

type Option func(*Service)

func WithSyncThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.syncThreshold = n
		}
	}
}

// WithInlineOnly puts the dispatcher in storage-free mode:
// every request calls the Matcher directly with no caching or queueing.
func WithInlineOnly() Option {
	return func(s *Service) { s.inlineOnly = true }
}

func New(evidence ports.EvidenceRepository, jobs ports.JobRepository, matcher ports.Matcher, audit ports.AuditSink, opts ...Option) *Service {
	s := &Service{evidence: evidence, jobs: jobs, matcher: matcher, audit: audit, syncThreshold: defaultSyncThreshold}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Screen decides how to serve one submission: cached evidence, synchronous
// execution, or a queued background job.
func (s *Service) Screen(ctx context.Context, req Request) (Outcome, error) {
	if req.EntityType == "" {
		req.EntityType = domain.EntityPerson
	}
	if err := validate(req); err != nil {
		s.emitAudit(ctx, "", req, "rejected")
		return Outcome{}, err
	}

	fp, err := fingerprint.Derive(req.Name, req.EntityType, req.DOB)
	if err != nil {
		s.emitAudit(ctx, "", req, "rejected")
		return Outcome{}, err
	}

	if s.inlineOnly {
		result, err := s.matcher.Screen(ctx, matching.MatchInput{
			Name:       req.Name,
			DOB:        fingerprint.NormalizeDOB(req.DOB),
			EntityType: req.EntityType,
		})
		if err != nil {
			s.emitAudit(ctx, fp.String(), req, "rejected")
			return Outcome{}, err
		}
		ev := inlineEvidenceView(fp, req, result)
		s.emitAudit(ctx, fp.String(), req, "synchronous")
		return Outcome{Kind: OutcomeSynchronous, Fingerprint: fp, Evidence: &ev}, nil
	}

	cached, err := s.evidence.GetValid(ctx, fp)
	if err != nil {
		return Outcome{}, err
	}
	if cached != nil {
		s.emitAudit(ctx, fp.String(), req, "cache_reuse")
		return Outcome{Kind: OutcomeCached, Fingerprint: fp, Evidence: cached}, nil
	}

	pending, err := s.jobs.PendingPlusRunningCount(ctx)
	if err != nil {
		return Outcome{}, err
	}

	if pending < s.syncThreshold {
		result, err := s.matcher.Screen(ctx, matching.MatchInput{
			Name:       req.Name,
			DOB:        fingerprint.NormalizeDOB(req.DOB),
			EntityType: req.EntityType,
		})
		if err != nil {
			s.emitAudit(ctx, fp.String(), req, "rejected")
			return Outcome{}, err
		}
		dob := normalizedDOBPtr(req.DOB)
		ev, err := s.evidence.Upsert(ctx, ports.UpsertEvidenceInput{
			Fingerprint:    fp,
			DisplayName:    req.Name,
			NormalizedName: fingerprint.NormalizeName(req.Name),
			DateOfBirth:    dob,
			EntityType:     req.EntityType,
			Result:         result,
			Requestor:      req.Requestor,
		})
		if err != nil {
			return Outcome{}, err
		}
		s.emitAudit(ctx, fp.String(), req, "synchronous")
		return Outcome{Kind: OutcomeSynchronous, Fingerprint: fp, Evidence: &ev}, nil
	}

	dob := normalizedDOBPtr(req.DOB)
	out, err := s.jobs.Enqueue(ctx, ports.EnqueueInput{
		Fingerprint:       fp,
		Name:              req.Name,
		DOB:               dob,
		EntityType:        req.EntityType,
		Requestor:         req.Requestor,
		Reason:            req.Reason,
		BusinessReference: req.BusinessReference,
	})
	if err != nil {
		return Outcome{}, err
	}

	switch out.Kind {
	case ports.EnqueueReused:
		s.emitAudit(ctx, fp.String(), req, "cache_reuse")
		return Outcome{Kind: OutcomeCached, Fingerprint: fp, Evidence: out.CachedView}, nil
	case ports.EnqueueAlreadyPending:
		s.emitAudit(ctx, fp.String(), req, "queued")
		return Outcome{Kind: OutcomeAlreadyQueue, Fingerprint: fp, JobID: out.JobID}, nil
	default:
		s.emitAudit(ctx, fp.String(), req, "queued")
		return Outcome{Kind: OutcomeQueued, Fingerprint: fp, JobID: out.JobID}, nil
	}
}

func validate(req Request) error {
	if req.Name == "" {
		return apperr.Invalid("name", "name is required")
	}
	if req.Requestor == "" {
		return apperr.Invalid("requestor", "requestor is required")
	}
	if req.BusinessReference == "" {
		return apperr.Invalid("business_reference", "business_reference is required")
	}
	if !domain.ValidReasons[req.Reason] {
		return apperr.Invalid("reason_for_check", "reason_for_check is not one of the enumerated values")
	}
	if req.EntityType != domain.EntityPerson && req.EntityType != domain.EntityOrganization {
		return apperr.Invalid("entity_type", "entity_type must be Person or Organization")
	}
	return nil
}

func normalizedDOBPtr(dob string) *string {
	norm := fingerprint.NormalizeDOB(dob)
	if norm == "" {
		return nil
	}
	return &norm
}

func inlineEvidenceView(fp domain.Fingerprint, req Request, result domain.ResultBlob) domain.EvidenceRow {
	now := time.Now().UTC()
	return domain.EvidenceRow{
		Fingerprint:    fp,
		DisplayName:    req.Name,
		NormalizedName: fingerprint.NormalizeName(req.Name),
		EntityType:     req.EntityType,
		LastScreenedAt: now,
		ValidUntil:     now, // inline-only mode caches nothing; validity is not meaningful
		Status:         result.CheckStatus,
		RiskLevel:      result.RiskLevel,
		Confidence:     result.Confidence,
		Score:          result.Score,
		Result:         result,
		LastRequestor:  req.Requestor,
		ReviewState:    domain.ReviewUnreviewed,
	}
}

func (s *Service) emitAudit(ctx context.Context, fp string, req Request, outcome string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, ports.AuditEvent{
		Timestamp:         time.Now().UTC(),
		Actor:             req.Requestor,
		Action:            "screen",
		Fingerprint:       fp,
		BusinessReference: req.BusinessReference,
		Reason:            string(req.Reason),
		Outcome:           outcome,
	})
}
