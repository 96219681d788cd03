package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Status is the account status of a principal.
type Status string

const (
	StatusActive   Status = "active"
	StatusLocked   Status = "locked"
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusLocked, StatusDisabled:
		return true
	}
	return false
}

// ErrPrincipalExists is returned when creating a principal whose id is already taken.
var ErrPrincipalExists = errors.New("principal already exists")

// Principal is an authenticatable identity and its credential state.
type Principal struct {
	ID                string
	SecretHash        string
	HashAlgo          string
	Status            Status
	FailedAttempts    int
	FailedWindowStart *time.Time
	// LockedUntil is nil for an administrative lock, which lasts until cleared.
	LockedUntil *time.Time
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsLocked reports whether the principal is locked at now. An automatic lock whose
// LockedUntil has passed no longer counts.
func (p *Principal) IsLocked(now time.Time) bool {
	if p.Status != StatusLocked {
		return false
	}
	return p.LockedUntil == nil || now.Before(*p.LockedUntil)
}

// Validate validates the principal for persistence. Returns an error describing the first validation failure.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return errors.New("principal id is required")
	}
	if p.SecretHash == "" {
		return errors.New("secret hash is required")
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if !p.Status.Valid() {
		return errors.Newf("unknown status %q", p.Status)
	}
	return nil
}

// NormalizeID canonicalises a login identifier before lookup or storage.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// LockoutPolicy controls automatic locking after repeated failures.
type LockoutPolicy struct {
	// Threshold failures within Window lock the account for Duration.
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

// FailureOutcome is the principal's state after a failure was recorded.
type FailureOutcome struct {
	Attempts    int
	Status      Status
	LockedUntil *time.Time
}

// Locked reports whether the failure left the principal locked.
func (o FailureOutcome) Locked() bool { return o.Status == StatusLocked }
