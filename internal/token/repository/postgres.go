package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"identity-core/internal/token/domain"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const insertSQL = `
INSERT INTO refresh_tokens (id, family_id, principal_id, parent_id, generation, token_hash, status, issued_at, expires_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)`

// PostgresRepository stores refresh tokens in the refresh_tokens table.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository returns a refresh token repository that uses the given pool for persistence.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func insert(ctx context.Context, db interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}, t *domain.RefreshToken) error {
	status := t.Status
	if status == "" {
		status = domain.StatusActive
	}
	_, err := db.Exec(ctx, insertSQL, t.ID, t.FamilyID, t.PrincipalID, t.ParentID, t.Generation,
		t.TokenHash, string(status), t.IssuedAt, t.ExpiresAt)
	return err
}

// Insert stores a new record.
func (r *PostgresRepository) Insert(ctx context.Context, t *domain.RefreshToken) error {
	if err := insert(ctx, r.db, t); err != nil {
		return errors.Wrap(err, "insert refresh token")
	}
	return nil
}

// Get returns the record for id, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.RefreshToken, error) {
	var (
		t      domain.RefreshToken
		parent *string
		status string
	)
	err := r.db.QueryRow(ctx, `
SELECT id, family_id, principal_id, parent_id, generation, token_hash, status, issued_at, expires_at, rotated_at, revoked_at
FROM refresh_tokens WHERE id = $1`, id).Scan(
		&t.ID, &t.FamilyID, &t.PrincipalID, &parent, &t.Generation, &t.TokenHash, &status,
		&t.IssuedAt, &t.ExpiresAt, &t.RotatedAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get refresh token")
	}
	if parent != nil {
		t.ParentID = *parent
	}
	t.Status = domain.Status(status)
	return &t, nil
}

// Rotate performs the compare-and-set from active to rotated and inserts the successor.
func (r *PostgresRepository) Rotate(ctx context.Context, oldID, oldHash string, next *domain.RefreshToken, now time.Time) (bool, error) {
	rotated := false
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE refresh_tokens SET status = 'rotated', rotated_at = $3
WHERE id = $1 AND token_hash = $2 AND status = 'active' AND expires_at > $3`, oldID, oldHash, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		if err := insert(ctx, tx, next); err != nil {
			return err
		}
		rotated = true
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "rotate refresh token")
	}
	return rotated, nil
}

// RevokeFamily revokes all live records of a family in one indexed update.
func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE refresh_tokens SET status = 'revoked', revoked_at = $2
WHERE family_id = $1 AND status IN ('active', 'rotated')`, familyID, now)
	if err != nil {
		return 0, errors.Wrap(err, "revoke family")
	}
	return tag.RowsAffected(), nil
}

// RevokeByPrincipal revokes all active records of the principal.
func (r *PostgresRepository) RevokeByPrincipal(ctx context.Context, principalID string, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
UPDATE refresh_tokens SET status = 'revoked', revoked_at = $2
WHERE principal_id = $1 AND status IN ('active', 'rotated')
RETURNING family_id`, principalID, now)
	if err != nil {
		return nil, errors.Wrap(err, "revoke by principal")
	}
	families, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "revoke by principal")
	}
	return dedupe(families), nil
}

// MarkExpired retires an active record whose expiry has passed.
func (r *PostgresRepository) MarkExpired(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
UPDATE refresh_tokens SET status = 'expired'
WHERE id = $1 AND status = 'active' AND expires_at <= $2`, id, now)
	if err != nil {
		return errors.Wrap(err, "mark expired")
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
