package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
	"screenguard/internal/ports"
)

const defaultValidityDays = 365

// GetValid implements ports.EvidenceRepository. Returns nil, nil when the
// row is absent or stale — never mutates valid_until on read.
func (db *DB) GetValid(ctx context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	row, err := db.getEvidence(ctx, fp, `AND valid_until > now()`)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (db *DB) Get(ctx context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	return db.getEvidence(ctx, fp, "")
}

func (db *DB) getEvidence(ctx context.Context, fp domain.Fingerprint, extraWhere string) (*domain.EvidenceRow, error) {
	q := `SELECT ` + evidenceColumns + ` FROM evidence WHERE fingerprint = $1 ` + extraWhere
	row := db.Pool.QueryRow(ctx, q, fp[:])
	e, err := scanEvidence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "query evidence", err)
	}
	return e, nil
}

// Upsert replaces the decision fields and result blob in place, applying the
// review-field rules: preserve them on a routine refresh (force_rescreen=false
// and unchanged status); otherwise
// reset to UNREVIEWED when the new status differs materially from the old.
func (db *DB) Upsert(ctx context.Context, in ports.UpsertEvidenceInput) (domain.EvidenceRow, error) {
	now := time.Now().UTC()
	days := db.validityDays
	if days <= 0 {
		days = defaultValidityDays
	}
	validUntil := now.AddDate(0, 0, days)

	blob, err := json.Marshal(in.Result)
	if err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "marshal result blob", err)
	}

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var prevStatus *string
	var prevReviewState *string
	err = tx.QueryRow(ctx, `SELECT status, review_state FROM evidence WHERE fingerprint = $1`, in.Fingerprint[:]).
		Scan(&prevStatus, &prevReviewState)
	hadPrior := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "read prior status", err)
	}

	reviewState := domain.ReviewUnreviewed
	preserveReview := hadPrior && !in.ForceRescreen && prevStatus != nil && *prevStatus == string(in.Result.CheckStatus)
	if preserveReview && prevReviewState != nil {
		reviewState = domain.ReviewState(*prevReviewState)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO evidence (
            fingerprint, display_name, normalized_name, date_of_birth, entity_type,
            last_screened_at, valid_until, status, risk_level, confidence, score,
            uk_sanctions_flag, pep_flag, result_blob, last_requestor, updated_at,
            review_state
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        ON CONFLICT (fingerprint) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            normalized_name = EXCLUDED.normalized_name,
            date_of_birth = EXCLUDED.date_of_birth,
            entity_type = EXCLUDED.entity_type,
            last_screened_at = EXCLUDED.last_screened_at,
            valid_until = EXCLUDED.valid_until,
            status = EXCLUDED.status,
            risk_level = EXCLUDED.risk_level,
            confidence = EXCLUDED.confidence,
            score = EXCLUDED.score,
            uk_sanctions_flag = EXCLUDED.uk_sanctions_flag,
            pep_flag = EXCLUDED.pep_flag,
            result_blob = EXCLUDED.result_blob,
            last_requestor = EXCLUDED.last_requestor,
            updated_at = EXCLUDED.updated_at,
            review_state = EXCLUDED.review_state,
            review_outcome = CASE WHEN EXCLUDED.review_state = 'UNREVIEWED' THEN NULL ELSE evidence.review_outcome END,
            review_notes = CASE WHEN EXCLUDED.review_state = 'UNREVIEWED' THEN NULL ELSE evidence.review_notes END,
            review_claimed_by = CASE WHEN EXCLUDED.review_state = 'UNREVIEWED' THEN NULL ELSE evidence.review_claimed_by END,
            review_claimed_at = CASE WHEN EXCLUDED.review_state = 'UNREVIEWED' THEN NULL ELSE evidence.review_claimed_at END,
            review_completed_by = CASE WHEN EXCLUDED.review_state = 'UNREVIEWED' THEN NULL ELSE evidence.review_completed_by END,
            review_completed_at = CASE WHEN EXCLUDED.review_state = 'UNREVIEWED' THEN NULL ELSE evidence.review_completed_at END
    `,
		in.Fingerprint[:], in.DisplayName, in.NormalizedName, in.DateOfBirth, string(in.EntityType),
		now, validUntil, string(in.Result.CheckStatus), string(in.Result.RiskLevel), string(in.Result.Confidence), in.Result.Score,
		in.Result.UKSanctionsFlag, in.Result.IsPEP, blob, in.Requestor, now, string(reviewState),
	)
	if err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "upsert evidence", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE fingerprint = $1`, in.Fingerprint[:])
	e, err := scanEvidence(row)
	if err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "read back evidence", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "commit tx", err)
	}
	committed = true
	return *e, nil
}

func (db *DB) SearchByName(ctx context.Context, substring string, limit int) ([]domain.EvidenceRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
        SELECT `+evidenceColumns+` FROM evidence
        WHERE normalized_name LIKE '%' || $1 || '%'
        ORDER BY updated_at DESC
        LIMIT $2
    `, strings.ToLower(substring), limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "search evidence", err)
	}
	defer rows.Close()

	var out []domain.EvidenceRow
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.StoreUnavailable, "scan evidence row", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (db *DB) SearchByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.EvidenceRow, error) {
	return db.Get(ctx, fp)
}

// ListValid enumerates all currently-valid rows, unclamped, for the
// Refresh Coordinator's candidate scan.
func (db *DB) ListValid(ctx context.Context) ([]domain.EvidenceRow, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+evidenceColumns+` FROM evidence
        WHERE valid_until > now()
        ORDER BY last_screened_at
    `)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "list valid evidence", err)
	}
	defer rows.Close()

	var out []domain.EvidenceRow
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.StoreUnavailable, "scan evidence row", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// MarkFalsePositive records an override flag without touching decision
// fields; validity is never extended (Open Question resolved in DESIGN.md).
func (db *DB) MarkFalsePositive(ctx context.Context, fp domain.Fingerprint, reason, actor string) (domain.EvidenceRow, error) {
	if reason == "" {
		return domain.EvidenceRow{}, apperr.Invalid("reason", "reason is required")
	}
	_, err := db.Pool.Exec(ctx, `
        UPDATE evidence SET overridden = true, false_positive_reason = $2, updated_at = now()
        WHERE fingerprint = $1
    `, fp[:], reason)
	if err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "mark false positive", err)
	}
	row, err := db.Get(ctx, fp)
	if err != nil {
		return domain.EvidenceRow{}, err
	}
	if row == nil {
		return domain.EvidenceRow{}, apperr.New(apperr.NotFound, "evidence row not found")
	}
	return *row, nil
}

// ClaimReview implements the review state machine's claim transition.
func (db *DB) ClaimReview(ctx context.Context, fp domain.Fingerprint, actor string) (domain.EvidenceRow, error) {
	tag, err := db.Pool.Exec(ctx, `
        UPDATE evidence SET review_state = 'IN_REVIEW', review_claimed_by = $2, review_claimed_at = now()
        WHERE fingerprint = $1 AND review_state = 'UNREVIEWED'
    `, fp[:], actor)
	if err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "claim review", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.EvidenceRow{}, apperr.New(apperr.Conflict, "evidence row is not UNREVIEWED")
	}
	row, err := db.Get(ctx, fp)
	if err != nil {
		return domain.EvidenceRow{}, err
	}
	if row == nil {
		return domain.EvidenceRow{}, apperr.New(apperr.NotFound, "evidence row not found")
	}
	return *row, nil
}

// CompleteReview implements the review state machine's complete transition.
// The outcome value is validated by the caller (internal/services/review)
// against domain.ValidReviewOutcomes before this is invoked.
func (db *DB) CompleteReview(ctx context.Context, fp domain.Fingerprint, actor string, outcome domain.ReviewOutcome, notes string) (domain.EvidenceRow, error) {
	tag, err := db.Pool.Exec(ctx, `
        UPDATE evidence SET
            review_state = 'COMPLETED',
            review_outcome = $2,
            review_notes = $3,
            review_completed_by = $4,
            review_completed_at = now()
        WHERE fingerprint = $1 AND review_state = 'IN_REVIEW' AND review_claimed_by = $4
    `, fp[:], string(outcome), notes, actor)
	if err != nil {
		return domain.EvidenceRow{}, apperr.Wrap(apperr.StoreUnavailable, "complete review", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.EvidenceRow{}, apperr.New(apperr.Conflict, "evidence row is not IN_REVIEW by this actor")
	}
	row, err := db.Get(ctx, fp)
	if err != nil {
		return domain.EvidenceRow{}, err
	}
	if row == nil {
		return domain.EvidenceRow{}, apperr.New(apperr.NotFound, "evidence row not found")
	}
	return *row, nil
}

func (db *DB) PurgeOlderThan(ctx context.Context, months int) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM evidence WHERE last_screened_at < now() - ($1 || ' months')::interval`, months)
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreUnavailable, "purge evidence", err)
	}
	return tag.RowsAffected(), nil
}

const evidenceColumns = `
    fingerprint, display_name, normalized_name, date_of_birth, entity_type,
    last_screened_at, valid_until, status, risk_level, confidence, score,
    uk_sanctions_flag, pep_flag, result_blob, last_requestor, updated_at,
    review_state, review_outcome, review_notes, review_claimed_by, review_claimed_at,
    review_completed_by, review_completed_at, false_positive_reason, overridden
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(r rowScanner) (*domain.EvidenceRow, error) {
	var e domain.EvidenceRow
	var fpBytes []byte
	var entityType, status, riskLevel, confidence, reviewState string
	var blob []byte
	var reviewOutcome *string

	err := r.Scan(
		&fpBytes, &e.DisplayName, &e.NormalizedName, &e.DateOfBirth, &entityType,
		&e.LastScreenedAt, &e.ValidUntil, &status, &riskLevel, &confidence, &e.Score,
		&e.UKSanctionsFlag, &e.PEPFlag, &blob, &e.LastRequestor, &e.UpdatedAt,
		&reviewState, &reviewOutcome, &e.ReviewNotes, &e.ReviewClaimedBy, &e.ReviewClaimedAt,
		&e.ReviewCompletedBy, &e.ReviewCompletedAt, &e.FalsePositiveReason, &e.Overridden,
	)
	if err != nil {
		return nil, err
	}

	copy(e.Fingerprint[:], fpBytes)
	e.EntityType = domain.EntityType(entityType)
	e.Status = domain.Status(status)
	e.RiskLevel = domain.RiskLevel(riskLevel)
	e.Confidence = domain.Confidence(confidence)
	e.ReviewState = domain.ReviewState(reviewState)
	if reviewOutcome != nil {
		oc := domain.ReviewOutcome(*reviewOutcome)
		e.ReviewOutcome = &oc
	}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &e.Result); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

var ErrNotFound = apperr.New(apperr.NotFound, "not found")
