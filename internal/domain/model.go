// Package domain holds the core types shared across services and adapters.
// API wire types are generated-shape structs in internal/api; keep these
// decoupled where helpful.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
)

type Status string

const (
	StatusCleared      Status = "Cleared"
	StatusFailPEP      Status = "Fail PEP"
	StatusFailSanction Status = "Fail Sanction"
)

type RiskLevel string

const (
	RiskCleared RiskLevel = "Cleared"
	RiskMedium  RiskLevel = "Medium Risk"
	RiskHigh    RiskLevel = "High Risk"
)

type Confidence string

const (
	ConfidenceVeryHigh Confidence = "Very High"
	ConfidenceHigh     Confidence = "High"
	ConfidenceMedium   Confidence = "Medium"
	ConfidenceLow      Confidence = "Low"
)

// Fingerprint is the 256-bit stable entity identifier from internal/fingerprint.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hexEncode(f[:]) }

func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

// TopMatch is one advisory suggestion surfaced alongside a decision.
type TopMatch struct {
	Name  string
	Score int
}

// ResultBlob is the opaque structured screening record. Apart from
// UKSanctionsFlag, every key here is one a wire consumer may observe; it is
// stored as JSONB and never
// grown ad hoc at the storage layer.
type ResultBlob struct {
	SanctionsName string
	BirthDate     string
	Regime        string
	Position      string
	Topics        []string
	IsPEP         bool
	IsSanctioned  bool
	Confidence    Confidence
	Score         decimal.Decimal
	RiskLevel     RiskLevel
	TopMatches    []TopMatch
	MatchFound    bool
	CheckStatus   Status
	CheckSource   string
	CheckDate     time.Time

	// UKSanctionsFlag is derived by the matcher when the winning sanctions
	// candidate belongs to a UK-scoped regime; not part of the frozen wire
	// response keys, stored on EvidenceRow for RC's UK-delta candidate scan.
	UKSanctionsFlag bool
}

type ReviewState string

const (
	ReviewUnreviewed ReviewState = "UNREVIEWED"
	ReviewInReview   ReviewState = "IN_REVIEW"
	ReviewCompleted  ReviewState = "COMPLETED"
)

type ReviewOutcome string

const (
	OutcomeFalsePositiveProceeded       ReviewOutcome = "False Positive – Proceeded"
	OutcomeFalsePositivePaymentReleased ReviewOutcome = "False Positive – Payment Released"
	OutcomeConfirmedPaymentBlocked      ReviewOutcome = "Confirmed Match – Payment Blocked"
	OutcomeConfirmedEscalated           ReviewOutcome = "Confirmed Match – Escalated to Compliance"
	OutcomePendingExternalReview        ReviewOutcome = "Pending External Review"
	OutcomeCancelled                    ReviewOutcome = "Cancelled / No Action Required"
)

var ValidReviewOutcomes = map[ReviewOutcome]bool{
	OutcomeFalsePositiveProceeded:       true,
	OutcomeFalsePositivePaymentReleased: true,
	OutcomeConfirmedPaymentBlocked:      true,
	OutcomeConfirmedEscalated:           true,
	OutcomePendingExternalReview:        true,
	OutcomeCancelled:                    true,
}

// EvidenceRow is the durable, at-most-one-per-fingerprint screening record.
type EvidenceRow struct {
	Fingerprint     Fingerprint
	DisplayName     string
	NormalizedName  string
	DateOfBirth     *string
	EntityType      EntityType
	LastScreenedAt  time.Time
	ValidUntil      time.Time
	Status          Status
	RiskLevel       RiskLevel
	Confidence      Confidence
	Score           decimal.Decimal
	UKSanctionsFlag bool
	PEPFlag         bool
	Result          ResultBlob
	LastRequestor   string
	UpdatedAt       time.Time

	ReviewState         ReviewState
	ReviewOutcome       *ReviewOutcome
	ReviewNotes         *string
	ReviewClaimedBy     *string
	ReviewClaimedAt     *time.Time
	ReviewCompletedBy   *string
	ReviewCompletedAt   *time.Time
	FalsePositiveReason *string
	Overridden          bool
}

func (e EvidenceRow) IsValid(now time.Time) bool { return e.ValidUntil.After(now) }

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type ScreeningReason string

const (
	ReasonClientOnboarding            ScreeningReason = "Client Onboarding"
	ReasonClaimPayment                ScreeningReason = "Claim Payment"
	ReasonBusinessPartnerPayment      ScreeningReason = "Business Partner Payment"
	ReasonBusinessPartnerDueDiligence ScreeningReason = "Business Partner Due Diligence"
	ReasonPeriodicReScreen            ScreeningReason = "Periodic Re-Screen"
	ReasonAdHocComplianceReview       ScreeningReason = "Ad-Hoc Compliance Review"
)

var ValidReasons = map[ScreeningReason]bool{
	ReasonClientOnboarding:            true,
	ReasonClaimPayment:                true,
	ReasonBusinessPartnerPayment:      true,
	ReasonBusinessPartnerDueDiligence: true,
	ReasonPeriodicReScreen:            true,
	ReasonAdHocComplianceReview:       true,
}

// Job is one enqueued screening task.
type Job struct {
	ID                string
	Fingerprint       Fingerprint
	Name              string
	DOB               *string
	EntityType        EntityType
	Requestor         string
	Reason            ScreeningReason
	BusinessReference string
	RefreshRunID      *string
	ForceRescreen     bool
	Status            JobStatus
	CreatedAt         time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	ErrorMessage      *string
}

// RefreshRun is one Refresh Coordinator invocation summary.
type RefreshRun struct {
	RunID               string
	RanAt               time.Time
	UKHash              string
	PrevUKHash          *string
	UKRowIDs            []string // sorted UK-scoped row identities, for the next run's delta
	UKRowCount          int
	DeltaAdded          int
	DeltaRemoved        int
	DeltaChanged        int
	CandidateCount      int
	QueuedCount         int
	ReusedCount         int
	AlreadyPendingCount int
	FailedCount         int
}

// User is the ambient account record backing login/JWT issuance; full user
// CRUD is out of core scope.
type User struct {
	ID           string
	Username     string
	PasswordHash string
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
