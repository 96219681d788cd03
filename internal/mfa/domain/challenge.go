package domain

import "time"

// ChallengeState is the state of one MFA challenge.
// NotRequired applies when the principal has no active enrollment; Pending moves to Verified on a
// correct response, or to Failed when attempts run out or the challenge expires.
type ChallengeState string

const (
	ChallengeNotRequired ChallengeState = "not_required"
	ChallengePending     ChallengeState = "pending"
	ChallengeVerified    ChallengeState = "verified"
	ChallengeFailed      ChallengeState = "failed"
)

// Purpose separates login challenges from enrollment confirmations so one can never stand in for
// the other.
type Purpose string

const (
	PurposeLogin  Purpose = "login"
	PurposeEnroll Purpose = "enroll"
)

// Challenge is a short-lived verification attempt bound to one principal and one enrollment.
// CodeHash is set only for delivered factors.
type Challenge struct {
	ID           string
	PrincipalID  string
	EnrollmentID string
	FactorType   FactorType
	Purpose      Purpose
	CodeHash     string
	State        ChallengeState
	Attempts     int
	MaxAttempts  int
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Remaining returns the attempts left before the challenge fails.
func (c *Challenge) Remaining() int {
	if n := c.MaxAttempts - c.Attempts; n > 0 {
		return n
	}
	return 0
}

// Expired reports whether the challenge's stored expiry has passed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
