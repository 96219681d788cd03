package repository

import (
	"context"
	"time"

	"identity-core/internal/audit/domain"
)

// Record is an outbox row. Seq increases in insertion order.
type Record struct {
	Seq   int64
	Event domain.Event
}

// Outbox holds events the emitter could not hand to the broker.
type Outbox interface {
	Append(ctx context.Context, ev domain.Event) error
	// Pending returns up to limit unpublished records in Seq order.
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, ids []string, now time.Time) error
	// HasPending reports whether any unpublished record belongs to principalID ("" for anonymous).
	HasPending(ctx context.Context, principalID string) (bool, error)
}
