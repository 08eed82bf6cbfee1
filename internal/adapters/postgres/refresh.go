package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
)

func (db *DB) LatestUKHash(ctx context.Context) (string, bool, error) {
	var hash string
	err := db.Pool.QueryRow(ctx, `SELECT uk_hash FROM refresh_runs ORDER BY ran_at DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.StoreUnavailable, "query latest uk hash", err)
	}
	return hash, true, nil
}

func (db *DB) LatestRowIDs(ctx context.Context) ([]string, bool, error) {
	var ids []string
	err := db.Pool.QueryRow(ctx, `SELECT uk_row_ids FROM refresh_runs ORDER BY ran_at DESC LIMIT 1`).Scan(&ids)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(apperr.StoreUnavailable, "query latest uk row ids", err)
	}
	return ids, true, nil
}

func (db *DB) Insert(ctx context.Context, run domain.RefreshRun) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO refresh_runs (
            run_id, ran_at, uk_hash, uk_row_ids, prev_uk_hash, uk_row_count, delta_added, delta_removed,
            delta_changed, candidate_count, queued_count, reused_count, already_pending_count, failed_count
        ) VALUES ($1, now(), $2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `, run.RunID, run.UKHash, run.UKRowIDs, run.PrevUKHash, run.UKRowCount, run.DeltaAdded, run.DeltaRemoved,
		run.DeltaChanged, run.CandidateCount, run.QueuedCount, run.ReusedCount, run.AlreadyPendingCount, run.FailedCount)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "insert refresh run", err)
	}
	return nil
}

// AdvisoryLock serializes concurrent Refresh Coordinator invocations using a
// session-scoped Postgres advisory lock. The returned unlock func must be
// called on the same connection path; callers hold it for the run's
// duration via a dedicated pool acquisition.
func (db *DB) AdvisoryLock(ctx context.Context, key int64) (unlock func(context.Context), err error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "acquire conn", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, apperr.Wrap(apperr.StoreUnavailable, "acquire advisory lock", err)
	}
	return func(ctx context.Context) {
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}, nil
}
