package repository

import (
	"context"
	"time"

	"identity-core/internal/token/domain"
)

// Repository persists refresh token records.
type Repository interface {
	Insert(ctx context.Context, t *domain.RefreshToken) error
	// Get returns the record, or nil if not found.
	Get(ctx context.Context, id string) (*domain.RefreshToken, error)
	// Rotate moves oldID from active to rotated if, and only if, it is still active, unexpired at
	// now and carries oldHash, and inserts next in the same transaction. Returns false when the
	// compare-and-set did not match; nothing is written in that case.
	Rotate(ctx context.Context, oldID, oldHash string, next *domain.RefreshToken, now time.Time) (bool, error)
	// RevokeFamily revokes every active or rotated record in the family. Returns the number revoked.
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
	// RevokeByPrincipal revokes every active record of the principal and returns the distinct
	// family ids that were affected.
	RevokeByPrincipal(ctx context.Context, principalID string, now time.Time) ([]string, error)
	// MarkExpired moves an active record whose expiry has passed to expired.
	MarkExpired(ctx context.Context, id string, now time.Time) error
}

// Denylist remembers recently revoked families so access tokens minted for them can be refused
// before they expire on their own.
type Denylist interface {
	Add(ctx context.Context, ttl time.Duration, familyIDs ...string) error
	Contains(ctx context.Context, familyID string) (bool, error)
}
