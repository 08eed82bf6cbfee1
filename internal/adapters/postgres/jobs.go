package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
	"screenguard/internal/ports"
)

// Enqueue is an atomic check-then-insert: a valid
// evidence row wins as Reused, an in-flight job wins as AlreadyPending,
// otherwise a new job is inserted and the per-fingerprint exclusivity is
// enforced by the partial unique index on (fingerprint) WHERE status IN
// (pending, running).
func (db *DB) Enqueue(ctx context.Context, in ports.EnqueueInput) (ports.EnqueueOutcome, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ports.EnqueueOutcome{}, apperr.Wrap(apperr.StoreUnavailable, "begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if !in.ForceRescreen {
		row := tx.QueryRow(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE fingerprint = $1 AND valid_until > now()`, in.Fingerprint[:])
		if e, err := scanEvidence(row); err == nil {
			if err := tx.Commit(ctx); err != nil {
				return ports.EnqueueOutcome{}, apperr.Wrap(apperr.StoreUnavailable, "commit tx", err)
			}
			committed = true
			return ports.EnqueueOutcome{Kind: ports.EnqueueReused, CachedView: e}, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return ports.EnqueueOutcome{}, apperr.Wrap(apperr.StoreUnavailable, "check evidence", err)
		}
	}

	var existingID string
	err = tx.QueryRow(ctx, `
        SELECT id FROM jobs WHERE fingerprint = $1 AND status IN ('pending', 'running')
        FOR UPDATE SKIP LOCKED
    `, in.Fingerprint[:]).Scan(&existingID)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return ports.EnqueueOutcome{}, apperr.Wrap(apperr.StoreUnavailable, "commit tx", err)
		}
		committed = true
		return ports.EnqueueOutcome{Kind: ports.EnqueueAlreadyPending, JobID: existingID}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ports.EnqueueOutcome{}, apperr.Wrap(apperr.StoreUnavailable, "check pending jobs", err)
	}

	jobID := uuid.NewString()
	_, err = tx.Exec(ctx, `
        INSERT INTO jobs (
            id, fingerprint, name, dob, entity_type, requestor, reason,
            business_reference, refresh_run_id, force_rescreen, status, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending', now())
    `, jobID, in.Fingerprint[:], in.Name, in.DOB, string(in.EntityType), in.Requestor, string(in.Reason),
		in.BusinessReference, in.RefreshRunID, in.ForceRescreen)
	if err != nil {
		// A concurrent enqueue may have won the partial unique index race;
		// surface as AlreadyPending with the winner's job id rather than an
		// opaque store error (Conflict only if that job cannot be read back).
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			_ = tx.Rollback(ctx)
			committed = true
			var winnerID string
			if qerr := db.Pool.QueryRow(ctx, `SELECT id FROM jobs WHERE fingerprint = $1 AND status IN ('pending', 'running')`,
				in.Fingerprint[:]).Scan(&winnerID); qerr == nil {
				return ports.EnqueueOutcome{Kind: ports.EnqueueAlreadyPending, JobID: winnerID}, nil
			}
			return ports.EnqueueOutcome{}, apperr.New(apperr.Conflict, "job already in flight for fingerprint")
		}
		return ports.EnqueueOutcome{}, apperr.Wrap(apperr.StoreUnavailable, "insert job", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ports.EnqueueOutcome{}, apperr.Wrap(apperr.StoreUnavailable, "commit tx", err)
	}
	committed = true
	return ports.EnqueueOutcome{Kind: ports.EnqueueQueued, JobID: jobID}, nil
}

// ClaimOne selects the oldest pending job, skipping rows locked by other
// claimers, and transitions it to running.
func (db *DB) ClaimOne(ctx context.Context) (*domain.Job, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var j domain.Job
	var fpBytes []byte
	var entityType, reason, status string
	err = tx.QueryRow(ctx, `
        SELECT id, fingerprint, name, dob, entity_type, requestor, reason, business_reference,
               refresh_run_id, force_rescreen, status, created_at
        FROM jobs
        WHERE status = 'pending'
        ORDER BY created_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&j.ID, &fpBytes, &j.Name, &j.DOB, &entityType, &j.Requestor, &reason, &j.BusinessReference,
		&j.RefreshRunID, &j.ForceRescreen, &status, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "claim job", err)
	}

	now := time.Now().UTC()
	if _, err = tx.Exec(ctx, `UPDATE jobs SET status = 'running', started_at = $2 WHERE id = $1`, j.ID, now); err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "mark job running", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "commit tx", err)
	}
	committed = true

	copy(j.Fingerprint[:], fpBytes)
	j.EntityType = domain.EntityType(entityType)
	j.Reason = domain.ScreeningReason(reason)
	j.Status = domain.JobRunning
	j.StartedAt = &now
	return &j, nil
}

func (db *DB) Complete(ctx context.Context, jobID string) error {
	tag, err := db.Pool.Exec(ctx, `
        UPDATE jobs SET status = 'completed', finished_at = now()
        WHERE id = $1 AND status = 'running'
    `, jobID)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.Conflict, "job not in running state")
	}
	return nil
}

func (db *DB) Fail(ctx context.Context, jobID string, errMessage string) error {
	if len(errMessage) > 500 {
		errMessage = errMessage[:500]
	}
	tag, err := db.Pool.Exec(ctx, `
        UPDATE jobs SET status = 'failed', finished_at = now(), error_message = $2
        WHERE id = $1 AND status = 'running'
    `, jobID, errMessage)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "fail job", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.Conflict, "job not in running state")
	}
	return nil
}

func (db *DB) Status(ctx context.Context, jobID string) (*domain.Job, *domain.EvidenceRow, error) {
	var j domain.Job
	var fpBytes []byte
	var entityType, reason, status string
	err := db.Pool.QueryRow(ctx, `
        SELECT id, fingerprint, name, dob, entity_type, requestor, reason, business_reference,
               refresh_run_id, force_rescreen, status, created_at, started_at, finished_at, error_message
        FROM jobs WHERE id = $1
    `, jobID).Scan(&j.ID, &fpBytes, &j.Name, &j.DOB, &entityType, &j.Requestor, &reason, &j.BusinessReference,
		&j.RefreshRunID, &j.ForceRescreen, &status, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperr.New(apperr.NotFound, "job not found")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.StoreUnavailable, "query job", err)
	}
	copy(j.Fingerprint[:], fpBytes)
	j.EntityType = domain.EntityType(entityType)
	j.Reason = domain.ScreeningReason(reason)
	j.Status = domain.JobStatus(status)

	var evidence *domain.EvidenceRow
	if j.Status == domain.JobCompleted {
		evidence, err = db.Get(ctx, j.Fingerprint)
		if err != nil {
			return &j, nil, err
		}
	}
	return &j, evidence, nil
}

func (db *DB) PendingPlusRunningCount(ctx context.Context) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE status IN ('pending', 'running')`).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, "count jobs", err)
	}
	return n, nil
}

func (db *DB) PurgeTerminalOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
        DELETE FROM jobs
        WHERE status IN ('completed', 'failed') AND finished_at < now() - ($1 || ' days')::interval
    `, days)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, "purge jobs", err)
	}
	return tag.RowsAffected(), nil
}
