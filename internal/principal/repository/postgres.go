package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"identity-core/internal/principal/domain"
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

const principalColumns = `id, secret_hash, hash_algo, status, failed_attempts, failed_window_start,
	locked_until, last_login_at, created_at, updated_at`

// recordFailureSQL locks the row, decides whether the failure window restarts, and writes the
// new counter and lock state in one statement. A live lock and a disabled account keep their status.
const recordFailureSQL = `
WITH cur AS (
	SELECT id,
	       failed_attempts,
	       (failed_window_start IS NULL OR failed_window_start <= $3
	        OR (status = 'locked' AND locked_until IS NOT NULL AND locked_until <= $2)) AS fresh,
	       (status = 'locked' AND (locked_until IS NULL OR locked_until > $2)) AS lock_live,
	       (status = 'disabled') AS disabled
	FROM principals
	WHERE id = $1
	FOR UPDATE
), nxt AS (
	SELECT id, fresh, lock_live, disabled,
	       CASE WHEN fresh THEN 1 ELSE failed_attempts + 1 END AS attempts
	FROM cur
)
UPDATE principals p SET
	failed_attempts = nxt.attempts,
	failed_window_start = CASE WHEN nxt.fresh THEN $2 ELSE p.failed_window_start END,
	status = CASE
		WHEN nxt.disabled OR nxt.lock_live THEN p.status
		WHEN nxt.attempts >= $4 THEN 'locked'
		ELSE 'active'
	END,
	locked_until = CASE
		WHEN nxt.disabled OR nxt.lock_live THEN p.locked_until
		WHEN nxt.attempts >= $4 THEN $5
		ELSE NULL
	END,
	updated_at = $2
FROM nxt
WHERE p.id = nxt.id
RETURNING p.failed_attempts, p.status, p.locked_until`

const recordSuccessSQL = `
UPDATE principals SET
	failed_attempts = 0,
	failed_window_start = NULL,
	status = CASE WHEN status = 'locked' AND locked_until IS NOT NULL AND locked_until <= $2 THEN 'active' ELSE status END,
	locked_until = CASE WHEN status = 'locked' AND locked_until IS NOT NULL AND locked_until <= $2 THEN NULL ELSE locked_until END,
	last_login_at = $2,
	updated_at = $2
WHERE id = $1`

// PostgresRepository persists principals with pgx.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository returns a principal repository that uses the given pool for persistence.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the principal for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get principal")
	}
	return p, nil
}

// Create inserts the principal. The principal must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO principals (id, secret_hash, hash_algo, status, failed_attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		p.ID, p.SecretHash, p.HashAlgo, string(p.Status), p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrPrincipalExists
	}
	if err != nil {
		return errors.Wrap(err, "create principal")
	}
	return nil
}

// RecordFailure atomically counts a failed attempt and applies the lockout policy.
func (r *PostgresRepository) RecordFailure(ctx context.Context, id string, now time.Time, policy domain.LockoutPolicy) (*domain.FailureOutcome, error) {
	var (
		out    domain.FailureOutcome
		status string
	)
	err := r.db.QueryRow(ctx, recordFailureSQL,
		id, now, now.Add(-policy.Window), policy.Threshold, now.Add(policy.Duration),
	).Scan(&out.Attempts, &status, &out.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "record failed attempt")
	}
	out.Status = domain.Status(status)
	return &out, nil
}

// RecordSuccess resets the failure counter and stamps the last login time.
func (r *PostgresRepository) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	if _, err := r.db.Exec(ctx, recordSuccessSQL, id, now); err != nil {
		return errors.Wrap(err, "record success")
	}
	return nil
}

// UpdateSecretHash replaces the stored credential hash.
func (r *PostgresRepository) UpdateSecretHash(ctx context.Context, id, hash, algo string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE principals SET secret_hash = $2, hash_algo = $3, updated_at = $4 WHERE id = $1`,
		id, hash, algo, now)
	if err != nil {
		return false, errors.Wrap(err, "update secret hash")
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus applies an administrative status change.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status domain.Status, now time.Time) (bool, error) {
	if !status.Valid() {
		return false, errors.Newf("unknown status %q", status)
	}
	tag, err := r.db.Exec(ctx, `
UPDATE principals SET
	status = $2,
	locked_until = NULL,
	failed_attempts = 0,
	failed_window_start = NULL,
	updated_at = $3
WHERE id = $1`, id, string(status), now)
	if err != nil {
		return false, errors.Wrap(err, "set status")
	}
	return tag.RowsAffected() == 1, nil
}

func scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	var (
		p      domain.Principal
		status string
	)
	err := row.Scan(&p.ID, &p.SecretHash, &p.HashAlgo, &status, &p.FailedAttempts, &p.FailedWindowStart,
		&p.LockedUntil, &p.LastLoginAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	return &p, nil
}
