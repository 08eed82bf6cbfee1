package screenrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"screenguard/internal/domain"
	"screenguard/internal/matching"
	"screenguard/internal/ports"
)

type fakeJobs struct {
	pending   []*domain.Job
	completed []string
	failed    map[string]string
}

func (f *fakeJobs) Enqueue(context.Context, ports.EnqueueInput) (ports.EnqueueOutcome, error) {
	return ports.EnqueueOutcome{}, nil
}
func (f *fakeJobs) ClaimOne(context.Context) (*domain.Job, error) {
	if len(f.pending) == 0 {
		return nil, nil
	}
	j := f.pending[0]
	f.pending = f.pending[1:]
	j.Status = domain.JobRunning
	return j, nil
}
func (f *fakeJobs) Complete(_ context.Context, jobID string) error {
	f.completed = append(f.completed, jobID)
	return nil
}
func (f *fakeJobs) Fail(_ context.Context, jobID string, msg string) error {
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[jobID] = msg
	return nil
}
func (f *fakeJobs) Status(context.Context, string) (*domain.Job, *domain.EvidenceRow, error) {
	return nil, nil, nil
}
func (f *fakeJobs) PendingPlusRunningCount(context.Context) (int, error)       { return len(f.pending), nil }
func (f *fakeJobs) PurgeTerminalOlderThan(context.Context, int) (int64, error) { return 0, nil }

type fakeEvidence struct {
	valid    map[domain.Fingerprint]domain.EvidenceRow
	upserted []ports.UpsertEvidenceInput
}

func (f *fakeEvidence) GetValid(_ context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	if row, ok := f.valid[fp]; ok {
		return &row, nil
	}
	return nil, nil
}
func (f *fakeEvidence) Get(context.Context, domain.Fingerprint) (*domain.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidence) Upsert(_ context.Context, in ports.UpsertEvidenceInput) (domain.EvidenceRow, error) {
	f.upserted = append(f.upserted, in)
	return domain.EvidenceRow{Fingerprint: in.Fingerprint, Status: in.Result.CheckStatus}, nil
}
func (f *fakeEvidence) SearchByName(context.Context, string, int) ([]domain.EvidenceRow, error) {
	return nil, nil
}
func (f *fakeEvidence) SearchByFingerprint(context.Context, domain.Fingerprint) (*domain.EvidenceRow, error) {
	return nil, nil
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

type fakeMatcher struct {
	result domain.ResultBlob
	err    error
}

func (f *fakeMatcher) Screen(context.Context, matching.MatchInput) (domain.ResultBlob, error) {
	return f.result, f.err
}

type noopAudit struct{}

func (noopAudit) Emit(context.Context, ports.AuditEvent) {}

func TestProcessInline_CompletesJobAndUpsertsEvidence(t *testing.T) {
	jobs := &fakeJobs{pending: []*domain.Job{{ID: "j1", Name: "Jane Doe", EntityType: domain.EntityPerson}}}
	evidence := &fakeEvidence{valid: map[domain.Fingerprint]domain.EvidenceRow{}}
	matcher := &fakeMatcher{result: domain.ResultBlob{CheckStatus: domain.StatusFailSanction}}

	claimed, err := ProcessInline(context.Background(), jobs, evidence, matcher, noopAudit{}, zap.NewNop(), Config{})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []string{"j1"}, jobs.completed)
	require.Len(t, evidence.upserted, 1)
	assert.Equal(t, domain.StatusFailSanction, evidence.upserted[0].Result.CheckStatus)
}

func TestProcessInline_ReusesValidEvidenceWithoutMatcherCall(t *testing.T) {
	fp := domain.Fingerprint{1, 2, 3}
	jobs := &fakeJobs{pending: []*domain.Job{{ID: "j1", Fingerprint: fp}}}
	evidence := &fakeEvidence{valid: map[domain.Fingerprint]domain.EvidenceRow{
		fp: {Fingerprint: fp, ValidUntil: time.Now().Add(time.Hour)},
	}}
	matcher := &fakeMatcher{err: assertUnreachable{}}

	claimed, err := ProcessInline(context.Background(), jobs, evidence, matcher, noopAudit{}, zap.NewNop(), Config{})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []string{"j1"}, jobs.completed)
	assert.Empty(t, evidence.upserted)
}

func TestProcessInline_NoJobsReturnsFalse(t *testing.T) {
	jobs := &fakeJobs{}
	evidence := &fakeEvidence{}
	claimed, err := ProcessInline(context.Background(), jobs, evidence, &fakeMatcher{}, noopAudit{}, zap.NewNop(), Config{})
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestProcessInline_MatcherFailureFailsJob(t *testing.T) {
	jobs := &fakeJobs{pending: []*domain.Job{{ID: "j1"}}}
	evidence := &fakeEvidence{}
	matcher := &fakeMatcher{err: assertUnreachable{}}

	claimed, err := ProcessInline(context.Background(), jobs, evidence, matcher, noopAudit{}, zap.NewNop(), Config{})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Contains(t, jobs.failed, "j1")
}

type assertUnreachable struct{}

func (assertUnreachable) Error() string { return "matcher should not have been called" }
