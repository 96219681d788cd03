package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"identity-core/internal/audit/domain"
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx used by the outbox.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresOutbox stores events in audit_outbox. The whole event is kept as JSON in payload.
type PostgresOutbox struct {
	db DBTX
}

// NewPostgresOutbox returns an outbox backed by db.
func NewPostgresOutbox(db DBTX) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

// Append inserts ev. Appending an event id twice is a no-op.
func (o *PostgresOutbox) Append(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal audit event")
	}
	_, err = o.db.Exec(ctx, `INSERT INTO audit_outbox (id, principal_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.PrincipalID, string(ev.Type), payload, ev.OccurredAt)
	return errors.Wrap(err, "append audit outbox")
}

func (o *PostgresOutbox) Pending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := o.db.Query(ctx, `SELECT seq, payload FROM audit_outbox
		WHERE published_at IS NULL ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list audit outbox")
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec     Record
			payload []byte
		)
		if err := rows.Scan(&rec.Seq, &payload); err != nil {
			return nil, errors.Wrap(err, "scan audit outbox")
		}
		if err := json.Unmarshal(payload, &rec.Event); err != nil {
			return nil, errors.Wrapf(err, "decode audit outbox seq %d", rec.Seq)
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "list audit outbox")
}

func (o *PostgresOutbox) MarkPublished(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := o.db.Exec(ctx, `UPDATE audit_outbox SET published_at = $2 WHERE id = ANY($1) AND published_at IS NULL`, ids, now)
	return errors.Wrap(err, "mark audit outbox published")
}

func (o *PostgresOutbox) HasPending(ctx context.Context, principalID string) (bool, error) {
	var pending bool
	err := o.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM audit_outbox
		WHERE principal_id = $1 AND published_at IS NULL)`, principalID).Scan(&pending)
	return pending, errors.Wrap(err, "check audit outbox")
}
