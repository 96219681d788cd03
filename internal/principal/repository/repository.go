package repository

import (
	"context"
	"time"

	"identity-core/internal/principal/domain"
)

// Repository defines persistence for principals. Every mutation is a single atomic
// statement against one row so concurrent instances never lose updates.
type Repository interface {
	// GetByID returns the principal, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	// Create inserts p. Returns domain.ErrPrincipalExists if the id is taken.
	Create(ctx context.Context, p *domain.Principal) error
	// RecordFailure counts one failed attempt under policy and locks the principal when the
	// threshold is reached within the window. Returns nil outcome if the principal does not exist.
	RecordFailure(ctx context.Context, id string, now time.Time, policy domain.LockoutPolicy) (*domain.FailureOutcome, error)
	// RecordSuccess clears the failure counter, releases an expired automatic lock and stamps last login.
	RecordSuccess(ctx context.Context, id string, now time.Time) error
	// UpdateSecretHash replaces the stored hash. Returns false if the principal does not exist.
	UpdateSecretHash(ctx context.Context, id, hash, algo string, now time.Time) (bool, error)
	// SetStatus sets the status administratively. Moving to active or disabled clears lock and
	// failure state; moving to locked sets an indefinite lock. Returns false if not found.
	SetStatus(ctx context.Context, id string, status domain.Status, now time.Time) (bool, error)
}
