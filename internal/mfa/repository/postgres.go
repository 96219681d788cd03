package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"identity-core/internal/mfa/domain"
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

const enrollmentColumns = `id, principal_id, factor_type, secret, destination, status, is_primary, created_at, updated_at`

const activateSQL = `
UPDATE mfa_enrollments e SET
	status = 'active',
	is_primary = e.factor_type <> 'recovery_codes' AND NOT EXISTS (
		SELECT 1 FROM mfa_enrollments p
		WHERE p.principal_id = e.principal_id AND p.is_primary AND p.status = 'active'),
	updated_at = $2
WHERE e.id = $1 AND e.status = 'pending'`

// consumeRecoverySQL drops one hash from the comma-separated set, matching only when it is present.
const consumeRecoverySQL = `
UPDATE mfa_enrollments SET
	secret = array_to_string(array_remove(string_to_array(secret, ','), $2::text), ','),
	updated_at = $3
WHERE id = $1 AND status = 'active' AND factor_type = 'recovery_codes'
	AND $2::text = ANY(string_to_array(secret, ','))`

// PostgresRepository persists enrollments with pgx.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository returns an enrollment repository backed by db.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanEnrollment(row pgx.Row) (*domain.Enrollment, error) {
	var e domain.Enrollment
	err := row.Scan(&e.ID, &e.PrincipalID, &e.FactorType, &e.Secret, &e.Destination, &e.Status,
		&e.IsPrimary, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts the enrollment. The enrollment must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Enrollment) error {
	_, err := r.db.Exec(ctx, `INSERT INTO mfa_enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.PrincipalID, e.FactorType, e.Secret, e.Destination, e.Status, e.IsPrimary, e.CreatedAt, e.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrEnrollmentExists
	}
	return errors.Wrap(err, "insert enrollment")
}

// Get returns the enrollment for id, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRow(ctx, `SELECT `+enrollmentColumns+` FROM mfa_enrollments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get enrollment")
	}
	return e, nil
}

func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Enrollment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+enrollmentColumns+` FROM mfa_enrollments
		WHERE principal_id = $1 AND status <> 'revoked'
		ORDER BY created_at, id`, principalID)
	if err != nil {
		return nil, errors.Wrap(err, "list enrollments")
	}
	defer rows.Close()
	var out []*domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan enrollment")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "list enrollments")
}

func (r *PostgresRepository) Primary(ctx context.Context, principalID string) (*domain.Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRow(ctx, `SELECT `+enrollmentColumns+` FROM mfa_enrollments
		WHERE principal_id = $1 AND status = 'active'
		ORDER BY is_primary DESC, factor_type = 'recovery_codes', created_at, id
		LIMIT 1`, principalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "primary enrollment")
	}
	return e, nil
}

func (r *PostgresRepository) Activate(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, activateSQL, id, now)
	if err != nil {
		return false, errors.Wrap(err, "activate enrollment")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, principalID, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE mfa_enrollments SET status = 'revoked', is_primary = FALSE, updated_at = $3
		WHERE id = $1 AND principal_id = $2 AND status <> 'revoked'`, id, principalID, now)
	if err != nil {
		return false, errors.Wrap(err, "revoke enrollment")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) ConsumeRecoveryCode(ctx context.Context, id, codeHash string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, consumeRecoverySQL, id, codeHash, now)
	if err != nil {
		return false, errors.Wrap(err, "consume recovery code")
	}
	return tag.RowsAffected() == 1, nil
}
