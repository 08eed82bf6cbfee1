// Package refresh implements the Refresh Coordinator (RC): it receives a new
// watchlist snapshot, computes a UK-regime delta against the previously
// recorded snapshot, and enqueues targeted re-screen jobs for affected
// entities.
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"screenguard/internal/domain"
	"screenguard/internal/fingerprint"
	"screenguard/internal/matching"
	"screenguard/internal/ports"
)

// Locker serializes concurrent RC runs; implemented by the postgres adapter
// with pg_advisory_lock, keyed on a configured lock key.
type Locker interface {
	AdvisoryLock(ctx context.Context, key int64) (unlock func(context.Context), err error)
}

const defaultAdvisoryLockKey = 8824001

type Service struct {
	evidence ports.EvidenceRepository
	jobs     ports.JobRepository
	runs     ports.RefreshRunRepository
	locker   Locker
	lockKey  int64
}

func New(evidence ports.EvidenceRepository, jobs ports.JobRepository, runs ports.RefreshRunRepository, locker Locker, lockKey int64) *Service {
	if lockKey == 0 {
		lockKey = defaultAdvisoryLockKey
	}
	return &Service{evidence: evidence, jobs: jobs, runs: runs, locker: locker, lockKey: lockKey}
}

// Result is the operator-facing summary of one Run.
type Result struct {
	Run       domain.RefreshRun
	UKChanged bool
}

// Run diffs ukRows, the UK-scoped subset of the new snapshot, against the
// previously recorded one and enqueues re-screen jobs for affected entities.
func (s *Service) Run(ctx context.Context, ukRows []matching.WatchlistRow) (Result, error) {
	if s.locker != nil {
		unlock, err := s.locker.AdvisoryLock(ctx, s.lockKey)
		if err != nil {
			return Result{}, err
		}
		defer unlock(ctx)
	}

	sortedIDs := rowIdentities(ukRows)
	ukHash := computeUKHash(sortedIDs)

	prevHash, hadPrev, err := s.runs.LatestUKHash(ctx)
	if err != nil {
		return Result{}, err
	}

	if hadPrev && prevHash == ukHash {
		// Idempotent short-circuit: identical snapshot, 0 new jobs, counts
		// reported as zero deltas.
		run := domain.RefreshRun{UKHash: ukHash, UKRowIDs: sortedIDs, PrevUKHash: &prevHash, UKRowCount: len(ukRows)}
		if err := s.runs.Insert(ctx, run); err != nil {
			return Result{}, err
		}
		return Result{Run: run, UKChanged: false}, nil
	}

	prevIDs, _, err := s.runs.LatestRowIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	added, removed, changed := diffRowIdentities(prevIDs, sortedIDs)

	candidates, err := s.selectCandidates(ctx, ukRows)
	if err != nil {
		return Result{}, err
	}

	var queued, reused, alreadyPending, failedCount int
	for _, fp := range candidates {
		row, err := s.evidence.Get(ctx, fp)
		if err != nil || row == nil {
			failedCount++
			continue
		}
		out, err := s.jobs.Enqueue(ctx, ports.EnqueueInput{
			Fingerprint:   fp,
			Name:          row.DisplayName,
			DOB:           row.DateOfBirth,
			EntityType:    row.EntityType,
			Requestor:     "refresh-coordinator",
			Reason:        domain.ReasonPeriodicReScreen,
			ForceRescreen: true,
		})
		if err != nil {
			failedCount++
			continue
		}
		switch out.Kind {
		case ports.EnqueueQueued:
			queued++
		case ports.EnqueueAlreadyPending:
			alreadyPending++
		case ports.EnqueueReused:
			reused++
		}
	}

	run := domain.RefreshRun{
		UKHash:              ukHash,
		UKRowIDs:            sortedIDs,
		UKRowCount:          len(ukRows),
		DeltaAdded:          added,
		DeltaRemoved:        removed,
		DeltaChanged:        changed,
		CandidateCount:      len(candidates),
		QueuedCount:         queued,
		ReusedCount:         reused,
		AlreadyPendingCount: alreadyPending,
		FailedCount:         failedCount,
	}
	if hadPrev {
		run.PrevUKHash = &prevHash
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		return Result{}, err
	}
	return Result{Run: run, UKChanged: true}, nil
}

// selectCandidates implements the Open Question resolution recorded in
// DESIGN.md: a conservative superset of currently-valid evidence rows whose
// normalized name token-overlaps any UK row name. A more precise "which row
// did this evidence actually match" filter would require the matcher to
// persist matched-row identity, which is out of scope.
func (s *Service) selectCandidates(ctx context.Context, ukRows []matching.WatchlistRow) ([]domain.Fingerprint, error) {
	tokens := make(map[string]bool)
	for _, row := range ukRows {
		for _, tok := range strings.Fields(fingerprint.NormalizeName(row.Name)) {
			tokens[tok] = true
		}
	}

	valid, err := s.evidence.ListValid(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.Fingerprint
	for _, row := range valid {
		for _, tok := range strings.Fields(row.NormalizedName) {
			if tokens[tok] {
				out = append(out, row.Fingerprint)
				break
			}
		}
	}
	return out, nil
}

// rowIdentities renders each UK row as "id<TAB>contenthash", sorted. Carrying
// a content hash alongside the stable ID lets the next run tell an edited row
// (same ID, different content) apart from an add+remove pair.
func rowIdentities(rows []matching.WatchlistRow) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		content := sha256.Sum256([]byte(r.Name + "|" + r.DOB + "|" + r.Regime))
		ids = append(ids, r.ID+"\t"+hex.EncodeToString(content[:8]))
	}
	sort.Strings(ids)
	return ids
}

// computeUKHash is the deterministic fingerprint of the sorted UK-regime row
// identities.
func computeUKHash(sortedIDs []string) string {
	h := sha256.Sum256([]byte(strings.Join(sortedIDs, "|")))
	return hex.EncodeToString(h[:])
}

// diffRowIdentities computes added/removed/changed counts between two sorted
// identity slices produced by rowIdentities.
func diffRowIdentities(prev, current []string) (added, removed, changed int) {
	prevByID := identityMap(prev)
	currentByID := identityMap(current)
	for id, hash := range currentByID {
		prevHash, ok := prevByID[id]
		switch {
		case !ok:
			added++
		case prevHash != hash:
			changed++
		}
	}
	for id := range prevByID {
		if _, ok := currentByID[id]; !ok {
			removed++
		}
	}
	return added, removed, changed
}

func identityMap(identities []string) map[string]string {
	out := make(map[string]string, len(identities))
	for _, ident := range identities {
		id, hash := ident, ""
		if i := strings.IndexByte(ident, '\t'); i >= 0 {
			id, hash = ident[:i], ident[i+1:]
		}
		out[id] = hash
	}
	return out
}
