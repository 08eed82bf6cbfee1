package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenguard/internal/domain"
	"screenguard/internal/fingerprint"
	"screenguard/internal/matching"
	"screenguard/internal/ports"
)

type fakeEvidence struct {
	rows map[domain.Fingerprint]domain.EvidenceRow
}

func newFakeEvidence() *fakeEvidence {
	return &fakeEvidence{rows: map[domain.Fingerprint]domain.EvidenceRow{}}
}

func (f *fakeEvidence) GetValid(_ context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	row, ok := f.rows[fp]
	if !ok || !row.IsValid(time.Now()) {
		return nil, nil
	}
	return &row, nil
}
func (f *fakeEvidence) Get(_ context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	row, ok := f.rows[fp]
	if !ok {
		return nil, nil
	}
	return &row, nil
}
func (f *fakeEvidence) Upsert(_ context.Context, in ports.UpsertEvidenceInput) (domain.EvidenceRow, error) {
	row := domain.EvidenceRow{
		Fingerprint:    in.Fingerprint,
		DisplayName:    in.DisplayName,
		NormalizedName: in.NormalizedName,
		EntityType:     in.EntityType,
		LastScreenedAt: time.Now(),
		ValidUntil:     time.Now().AddDate(0, 0, 365),
		Status:         in.Result.CheckStatus,
		RiskLevel:      in.Result.RiskLevel,
		Confidence:     in.Result.Confidence,
		Score:          in.Result.Score,
		Result:         in.Result,
		LastRequestor:  in.Requestor,
	}
	f.rows[in.Fingerprint] = row
	return row, nil
}
func (f *fakeEvidence) SearchByName(context.Context, string, int) ([]domain.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidence) SearchByFingerprint(_ context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	return f.Get(context.Background(), fp)
}
func (f *fakeEvidence) MarkFalsePositive(context.Context, domain.Fingerprint, string, string) (domain.EvidenceRow, error) {
	return domain.EvidenceRow{}, nil
}
func (f *fakeEvidence) ListValid(context.Context) ([]domain.EvidenceRow, error) { return nil, nil }
func (f *fakeEvidence) PurgeOlderThan(context.Context, int) (int64, error)      { return 0, nil }
func (f *fakeEvidence) ClaimReview(context.Context, domain.Fingerprint, string) (domain.EvidenceRow, error) {
	return domain.EvidenceRow{}, nil
}
func (f *fakeEvidence) CompleteReview(context.Context, domain.Fingerprint, string, domain.ReviewOutcome, string) (domain.EvidenceRow, error) {
	return domain.EvidenceRow{}, nil
}

type fakeJobs struct {
	inflight map[domain.Fingerprint]string
	queued   int
}

func newFakeJobs() *fakeJobs { return &fakeJobs{inflight: map[domain.Fingerprint]string{}} }

func (f *fakeJobs) Enqueue(_ context.Context, in ports.EnqueueInput) (ports.EnqueueOutcome, error) {
	if id, ok := f.inflight[in.Fingerprint]; ok {
		return ports.EnqueueOutcome{Kind: ports.EnqueueAlreadyPending, JobID: id}, nil
	}
	id := "job-1"
	f.inflight[in.Fingerprint] = id
	f.queued++
	return ports.EnqueueOutcome{Kind: ports.EnqueueQueued, JobID: id}, nil
}
func (f *fakeJobs) ClaimOne(context.Context) (*domain.Job, error) { return nil, nil }
func (f *fakeJobs) Complete(context.Context, string) error        { return nil }
func (f *fakeJobs) Fail(context.Context, string, string) error    { return nil }
func (f *fakeJobs) Status(context.Context, string) (*domain.Job, *domain.EvidenceRow, error) {
	return nil, nil, nil
}
func (f *fakeJobs) PendingPlusRunningCount(context.Context) (int, error)       { return len(f.inflight), nil }
func (f *fakeJobs) PurgeTerminalOlderThan(context.Context, int) (int64, error) { return 0, nil }

type fakeMatcher struct {
	result domain.ResultBlob
	err    error
}

func (f *fakeMatcher) Screen(context.Context, matching.MatchInput) (domain.ResultBlob, error) {
	return f.result, f.err
}

type fakeAudit struct{ events []ports.AuditEvent }

func (f *fakeAudit) Emit(_ context.Context, e ports.AuditEvent) { f.events = append(f.events, e) }

func baseRequest() Request {
	return Request{
		Name:              "Jane Doe",
		DOB:               "1980-05-01",
		EntityType:        domain.EntityPerson,
		Requestor:         "u1",
		Reason:            domain.ReasonClientOnboarding,
		BusinessReference: "CASE-1",
	}
}

func TestScreen_RejectsInvalidInput(t *testing.T) {
	svc := New(newFakeEvidence(), newFakeJobs(), &fakeMatcher{}, &fakeAudit{})
	req := baseRequest()
	req.Name = ""
	_, err := svc.Screen(context.Background(), req)
	require.Error(t, err)
}

func TestScreen_CacheReuse(t *testing.T) {
	evidence := newFakeEvidence()
	audit := &fakeAudit{}
	svc := New(evidence, newFakeJobs(), &fakeMatcher{}, audit)

	req := baseRequest()
	evidence.rows[mustFP(t, req)] = domain.EvidenceRow{
		Fingerprint: mustFP(t, req),
		ValidUntil:  time.Now().Add(100 * 24 * time.Hour),
		Status:      domain.StatusCleared,
	}

	out, err := svc.Screen(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCached, out.Kind)
	assert.Equal(t, "cache_reuse", audit.events[len(audit.events)-1].Outcome)
}

func TestScreen_SynchronousBelowThreshold(t *testing.T) {
	matcher := &fakeMatcher{result: domain.ResultBlob{CheckStatus: domain.StatusCleared, RiskLevel: domain.RiskCleared, Confidence: domain.ConfidenceVeryHigh, Score: decimal.Zero}}
	svc := New(newFakeEvidence(), newFakeJobs(), matcher, &fakeAudit{})

	out, err := svc.Screen(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynchronous, out.Kind)
	require.NotNil(t, out.Evidence)
	assert.Equal(t, domain.StatusCleared, out.Evidence.Status)
}

func TestScreen_QueuedWhenAtThreshold(t *testing.T) {
	jobs := newFakeJobs()
	for i := 0; i < defaultSyncThreshold; i++ {
		jobs.inflight[domain.Fingerprint{byte(i)}] = "x"
	}
	svc := New(newFakeEvidence(), jobs, &fakeMatcher{}, &fakeAudit{})

	out, err := svc.Screen(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, out.Kind)
	assert.NotEmpty(t, out.JobID)
}

func TestScreen_SecondSubmissionAlreadyPending(t *testing.T) {
	jobs := newFakeJobs()
	for i := 0; i < defaultSyncThreshold; i++ {
		jobs.inflight[domain.Fingerprint{byte(i)}] = "x"
	}
	svc := New(newFakeEvidence(), jobs, &fakeMatcher{}, &fakeAudit{})

	req := baseRequest()
	first, err := svc.Screen(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, first.Kind)

	second, err := svc.Screen(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyQueue, second.Kind)
	assert.Equal(t, first.JobID, second.JobID)
}

func mustFP(t *testing.T, req Request) domain.Fingerprint {
	t.Helper()
	fp, err := fingerprint.Derive(req.Name, req.EntityType, req.DOB)
	require.NoError(t, err)
	return fp
}
