package repository

import (
	"context"
	"time"

	"identity-core/internal/mfa/domain"
)

// Repository persists MFA enrollments.
type Repository interface {
	// Create stores a new enrollment. Returns domain.ErrEnrollmentExists when the principal already
	// holds a non-revoked enrollment of the same factor type.
	Create(ctx context.Context, e *domain.Enrollment) error
	// Get returns the enrollment, or nil if not found.
	Get(ctx context.Context, id string) (*domain.Enrollment, error)
	// ListByPrincipal returns every non-revoked enrollment of the principal, oldest first.
	ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Enrollment, error)
	// Primary returns the active enrollment a login challenge should use: the primary one, else the
	// oldest active non-recovery enrollment, else an active recovery code set. Nil when none is active.
	Primary(ctx context.Context, principalID string) (*domain.Enrollment, error)
	// Activate moves a pending enrollment to active and makes it primary when the principal has no
	// active primary and the factor is not a recovery code set. Returns false if it was not pending.
	Activate(ctx context.Context, id string, now time.Time) (bool, error)
	// Revoke revokes the principal's enrollment. Returns false if it was absent or already revoked.
	Revoke(ctx context.Context, principalID, id string, now time.Time) (bool, error)
	// ConsumeRecoveryCode removes codeHash from an active recovery code set. Returns false when the
	// hash is not present, so each code succeeds at most once.
	ConsumeRecoveryCode(ctx context.Context, id, codeHash string, now time.Time) (bool, error)
}
