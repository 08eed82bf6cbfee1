package refresh

import (
	"context"
	"fmt"
	"testing"
	"time"

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
	row := domain.EvidenceRow{Fingerprint: in.Fingerprint, DisplayName: in.DisplayName}
	f.rows[in.Fingerprint] = row
	return row, nil
}
func (f *fakeEvidence) SearchByName(_ context.Context, _ string, _ int) ([]domain.EvidenceRow, error) {
	out := make([]domain.EvidenceRow, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeEvidence) SearchByFingerprint(_ context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	return f.Get(context.Background(), fp)
}
func (f *fakeEvidence) MarkFalsePositive(context.Context, domain.Fingerprint, string, string) (domain.EvidenceRow, error) {
	return domain.EvidenceRow{}, nil
}
func (f *fakeEvidence) ListValid(context.Context) ([]domain.EvidenceRow, error) {
	now := time.Now()
	out := make([]domain.EvidenceRow, 0, len(f.rows))
	for _, r := range f.rows {
		if r.IsValid(now) {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeEvidence) PurgeOlderThan(context.Context, int) (int64, error) { return 0, nil }
func (f *fakeEvidence) ClaimReview(context.Context, domain.Fingerprint, string) (domain.EvidenceRow, error) {
	return domain.EvidenceRow{}, nil
}
func (f *fakeEvidence) CompleteReview(context.Context, domain.Fingerprint, string, domain.ReviewOutcome, string) (domain.EvidenceRow, error) {
	return domain.EvidenceRow{}, nil
}

func (f *fakeEvidence) put(name string, entityType domain.EntityType) domain.Fingerprint {
	fp, err := fingerprint.Derive(name, entityType, "")
	if err != nil {
		panic(err)
	}
	f.rows[fp] = domain.EvidenceRow{
		Fingerprint:    fp,
		DisplayName:    name,
		NormalizedName: fingerprint.NormalizeName(name),
		EntityType:     entityType,
		ValidUntil:     time.Now().Add(100 * 24 * time.Hour),
		Status:         domain.StatusCleared,
	}
	return fp
}

type fakeJobs struct {
	enqueued []ports.EnqueueInput
}

func (f *fakeJobs) Enqueue(_ context.Context, in ports.EnqueueInput) (ports.EnqueueOutcome, error) {
	f.enqueued = append(f.enqueued, in)
	return ports.EnqueueOutcome{Kind: ports.EnqueueQueued, JobID: "job-1"}, nil
}
func (f *fakeJobs) ClaimOne(context.Context) (*domain.Job, error) { return nil, nil }
func (f *fakeJobs) Complete(context.Context, string) error        { return nil }
func (f *fakeJobs) Fail(context.Context, string, string) error    { return nil }
func (f *fakeJobs) Status(context.Context, string) (*domain.Job, *domain.EvidenceRow, error) {
	return nil, nil, nil
}
func (f *fakeJobs) PendingPlusRunningCount(context.Context) (int, error)       { return 0, nil }
func (f *fakeJobs) PurgeTerminalOlderThan(context.Context, int) (int64, error) { return 0, nil }

type fakeRuns struct {
	runs []domain.RefreshRun
}

func (f *fakeRuns) LatestUKHash(context.Context) (string, bool, error) {
	if len(f.runs) == 0 {
		return "", false, nil
	}
	last := f.runs[len(f.runs)-1]
	return last.UKHash, true, nil
}
func (f *fakeRuns) LatestRowIDs(context.Context) ([]string, bool, error) {
	if len(f.runs) == 0 {
		return nil, false, nil
	}
	last := f.runs[len(f.runs)-1]
	return last.UKRowIDs, true, nil
}
func (f *fakeRuns) Insert(_ context.Context, run domain.RefreshRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func row(id, name string) matching.WatchlistRow {
	return matching.WatchlistRow{ID: id, Name: name, EntityType: domain.EntityPerson, Regime: "HMT", UKScoped: true}
}

func TestRun_FirstRunQueuesMatchingCandidates(t *testing.T) {
	evidence := newFakeEvidence()
	evidence.put("Jane Doe", domain.EntityPerson)
	evidence.put("Unrelated Person", domain.EntityPerson)
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	svc := New(evidence, jobs, runs, nil, 0)

	rows := []matching.WatchlistRow{row("r1", "Jane Doe")}
	result, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)
	assert.True(t, result.UKChanged)
	assert.Equal(t, 1, result.Run.DeltaAdded)
	assert.Equal(t, 0, result.Run.DeltaRemoved)
	assert.Len(t, jobs.enqueued, 1)
}

func TestRun_IdempotentReRunQueuesNothing(t *testing.T) {
	evidence := newFakeEvidence()
	evidence.put("Jane Doe", domain.EntityPerson)
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	svc := New(evidence, jobs, runs, nil, 0)

	rows := []matching.WatchlistRow{row("r1", "Jane Doe")}
	_, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)

	jobs.enqueued = nil
	result, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)
	assert.False(t, result.UKChanged)
	assert.Empty(t, jobs.enqueued)
}

func TestRun_DeltaAddedAndRemoved(t *testing.T) {
	evidence := newFakeEvidence()
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	svc := New(evidence, jobs, runs, nil, 0)

	first := []matching.WatchlistRow{row("r1", "A"), row("r2", "B")}
	_, err := svc.Run(context.Background(), first)
	require.NoError(t, err)

	second := []matching.WatchlistRow{row("r2", "B"), row("r3", "C"), row("r4", "D"), row("r5", "E")}
	result, err := svc.Run(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Run.DeltaAdded)
	assert.Equal(t, 1, result.Run.DeltaRemoved)
}

func TestRun_DeltaChangedOnEditedRow(t *testing.T) {
	evidence := newFakeEvidence()
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	svc := New(evidence, jobs, runs, nil, 0)

	first := []matching.WatchlistRow{row("r1", "A"), row("r2", "B")}
	_, err := svc.Run(context.Background(), first)
	require.NoError(t, err)

	second := []matching.WatchlistRow{row("r1", "A"), row("r2", "B Renamed")}
	result, err := svc.Run(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, result.UKChanged)
	assert.Equal(t, 0, result.Run.DeltaAdded)
	assert.Equal(t, 0, result.Run.DeltaRemoved)
	assert.Equal(t, 1, result.Run.DeltaChanged)
}

func TestRun_CandidateSuperset(t *testing.T) {
	evidence := newFakeEvidence()
	evidence.put("Jane Doe", domain.EntityPerson)
	evidence.put("John Smith", domain.EntityPerson)
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	svc := New(evidence, jobs, runs, nil, 0)

	rows := []matching.WatchlistRow{row("r1", "Jane Someone")}
	_, err := svc.Run(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, jobs.enqueued, 1)
	assert.Equal(t, "Jane Doe", jobs.enqueued[0].Name)
}

func TestRun_CandidateScanCoversFullValidSet(t *testing.T) {
	evidence := newFakeEvidence()
	for i := 0; i < 60; i++ {
		evidence.put(fmt.Sprintf("Jane Candidate%d", i), domain.EntityPerson)
	}
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	svc := New(evidence, jobs, runs, nil, 0)

	result, err := svc.Run(context.Background(), []matching.WatchlistRow{row("r1", "Jane Someone")})
	require.NoError(t, err)
	assert.Equal(t, 60, result.Run.CandidateCount)
	assert.Len(t, jobs.enqueued, 60)
}

type fakeLocker struct{ locked bool }

func (f *fakeLocker) AdvisoryLock(context.Context, int64) (func(context.Context), error) {
	f.locked = true
	return func(context.Context) { f.locked = false }, nil
}

func TestRun_UsesAdvisoryLock(t *testing.T) {
	evidence := newFakeEvidence()
	jobs := &fakeJobs{}
	runs := &fakeRuns{}
	locker := &fakeLocker{}
	svc := New(evidence, jobs, runs, locker, 0)

	_, err := svc.Run(context.Background(), []matching.WatchlistRow{row("r1", "A")})
	require.NoError(t, err)
	assert.False(t, locker.locked)
}
