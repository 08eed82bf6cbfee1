// Package api holds the wire request/response types and the strict-server
// interface for the HTTP surface. Hand-maintained in the shape
// oapi-codegen/oapi-codegen's v2 strict-server generator would produce from
// an openapi.yaml (the generator is not invoked by this build; this file
// tracks what it would emit).
package api

import "time"

type EntityType string

const (
	EntityTypePerson       EntityType = "Person"
	EntityTypeOrganization EntityType = "Organization"
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

// SubmitScreeningRequest is the POST /opcheck body.
type SubmitScreeningRequest struct {
	Name              string          `json:"name"`
	Dob               *string         `json:"dob,omitempty"`
	EntityType        *EntityType     `json:"entity_type,omitempty"`
	Requestor         string          `json:"requestor"`
	ReasonForCheck    ScreeningReason `json:"reason_for_check"`
	BusinessReference string          `json:"business_reference"`
	SearchBackend     *string         `json:"search_backend,omitempty"`
}

type TopMatch struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type CheckSummary struct {
	Status string    `json:"Status"`
	Source string    `json:"Source"`
	Date   time.Time `json:"Date"`
}

// EvidenceResponse is the frozen response-body key set for a successful
// screening.
type EvidenceResponse struct {
	SanctionsName string       `json:"Sanctions Name"`
	BirthDate     string       `json:"Birth Date"`
	Regime        string       `json:"Regime"`
	Position      string       `json:"Position"`
	Topics        []string     `json:"Topics"`
	IsPEP         bool         `json:"Is PEP"`
	IsSanctioned  bool         `json:"Is Sanctioned"`
	Confidence    string       `json:"Confidence"`
	Score         string       `json:"Score"`
	RiskLevel     string       `json:"Risk Level"`
	TopMatches    []TopMatch   `json:"Top Matches"`
	MatchFound    bool         `json:"Match Found"`
	CheckSummary  CheckSummary `json:"Check Summary"`
	EntityKey     *string      `json:"entity_key,omitempty"`
}

// QueuedResponse is the 202 body for an enqueued or already-pending job.
type QueuedResponse struct {
	JobID    string `json:"job_id"`
	Location string `json:"location"`
}

type JobStatusResponse struct {
	Status       string            `json:"status"`
	JobID        string            `json:"job_id"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Result       *EvidenceResponse `json:"result,omitempty"`
}

// BulkItemOutcome is one element of the bulk-enqueue response array.
type BulkItemOutcome struct {
	Status string  `json:"status"`
	JobID  *string `json:"job_id,omitempty"`
	Error  *string `json:"error,omitempty"`
}

type RefreshRequest struct {
	IncludePeps  *bool `json:"include_peps,omitempty"`
	SyncPostgres *bool `json:"sync_postgres,omitempty"`
}

type RefreshDelta struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

type RefreshRescreen struct {
	Queued         int `json:"queued"`
	Reused         int `json:"reused"`
	AlreadyPending int `json:"already_pending"`
	Failed         int `json:"failed"`
}

type RefreshRunView struct {
	RunID     string          `json:"run_id"`
	UKHash    string          `json:"uk_hash"`
	UKChanged bool            `json:"uk_changed"`
	Delta     RefreshDelta    `json:"delta"`
	Rescreen  RefreshRescreen `json:"rescreen"`
}

type RefreshResponse struct {
	Status         string         `json:"status"`
	PostgresSynced bool           `json:"postgres_synced"`
	PostgresRows   int            `json:"postgres_rows"`
	RefreshRun     RefreshRunView `json:"refresh_run"`
}

type ReviewClaimRequest struct {
	Actor string `json:"actor"`
}

type ReviewCompleteRequest struct {
	Actor   string `json:"actor"`
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

type FalsePositiveRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	Username string `json:"username"`
}

type ErrorResponse struct {
	Error string  `json:"error"`
	Field *string `json:"field,omitempty"`
}
