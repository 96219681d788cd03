package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-core/internal/audit/domain"
	"identity-core/internal/db/dbtest"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryOutbox(t *testing.T) {
	runContract(t, func(t *testing.T) Outbox { return NewMemoryOutbox() })
}

func TestPostgresOutbox(t *testing.T) {
	pool := dbtest.Postgres(t)
	runContract(t, func(t *testing.T) Outbox {
		dbtest.Reset(t, pool)
		return NewPostgresOutbox(pool)
	})
}

func event(id, principal string, offset time.Duration) domain.Event {
	return domain.Event{
		ID:          id,
		Type:        domain.TypeLoginFailed,
		PrincipalID: principal,
		Outcome:     domain.OutcomeFailure,
		Reason:      "invalid_credentials",
		Attributes:  map[string]string{"operation": "login"},
		OccurredAt:  t0.Add(offset),
	}
}

func ids(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Event.ID)
	}
	return out
}

func runContract(t *testing.T, newOutbox func(t *testing.T) Outbox) {
	t.Run("pending in append order", func(t *testing.T) {
		o := newOutbox(t)
		ctx := context.Background()
		require.NoError(t, o.Append(ctx, event("e2", "alice", time.Second)))
		require.NoError(t, o.Append(ctx, event("e1", "bob", 0)))
		require.NoError(t, o.Append(ctx, event("e3", "", 2*time.Second)))

		recs, err := o.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"e2", "e1", "e3"}, ids(recs))
		assert.Less(t, recs[0].Seq, recs[1].Seq)
		assert.Less(t, recs[1].Seq, recs[2].Seq)

		got := recs[0].Event
		assert.Equal(t, "alice", got.PrincipalID)
		assert.Equal(t, domain.TypeLoginFailed, got.Type)
		assert.Equal(t, "login", got.Attributes["operation"])
		assert.True(t, got.OccurredAt.Equal(t0.Add(time.Second)))

		limited, err := o.Pending(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"e2", "e1"}, ids(limited))
	})

	t.Run("duplicate append is ignored", func(t *testing.T) {
		o := newOutbox(t)
		ctx := context.Background()
		require.NoError(t, o.Append(ctx, event("e1", "alice", 0)))
		require.NoError(t, o.Append(ctx, event("e1", "alice", 0)))
		recs, err := o.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("mark published", func(t *testing.T) {
		o := newOutbox(t)
		ctx := context.Background()
		require.NoError(t, o.Append(ctx, event("e1", "alice", 0)))
		require.NoError(t, o.Append(ctx, event("e2", "alice", time.Second)))
		require.NoError(t, o.MarkPublished(ctx, []string{"e1", "missing"}, t0))
		require.NoError(t, o.MarkPublished(ctx, nil, t0))

		recs, err := o.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"e2"}, ids(recs))
	})

	t.Run("has pending per principal", func(t *testing.T) {
		o := newOutbox(t)
		ctx := context.Background()
		require.NoError(t, o.Append(ctx, event("a1", "alice", 0)))
		require.NoError(t, o.Append(ctx, event("n1", "", time.Second)))

		for principal, want := range map[string]bool{"alice": true, "": true, "bob": false} {
			got, err := o.HasPending(ctx, principal)
			require.NoError(t, err)
			assert.Equal(t, want, got, "principal %q", principal)
		}

		require.NoError(t, o.MarkPublished(ctx, []string{"a1"}, t0))
		got, err := o.HasPending(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestMemoryOutbox_Err(t *testing.T) {
	o := NewMemoryOutbox()
	o.Err = assert.AnError
	assert.ErrorIs(t, o.Append(context.Background(), event("e1", "alice", 0)), assert.AnError)
	_, err := o.Pending(context.Background(), 1)
	assert.ErrorIs(t, err, assert.AnError)
	_, err = o.HasPending(context.Background(), "alice")
	assert.ErrorIs(t, err, assert.AnError)
}
