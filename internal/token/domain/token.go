package domain

import "time"

// Status is the lifecycle state of one refresh token record.
// Active moves to Rotated (one valid refresh), Revoked or Expired; the latter three are terminal
// for authentication purposes.
type Status string

const (
	StatusActive  Status = "active"
	StatusRotated Status = "rotated"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// RefreshToken is one record in the refresh-token arena. All records minted from one login share
// FamilyID; Generation counts rotations from the original.
type RefreshToken struct {
	ID          string
	FamilyID    string
	PrincipalID string
	ParentID    string
	Generation  int
	TokenHash   string
	Status      Status
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RotatedAt   *time.Time
	RevokedAt   *time.Time
}

// Usable reports whether the record may be rotated at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.Status == StatusActive && now.Before(t.ExpiresAt)
}

// Pair is the credential set returned to a caller after login, challenge verification or refresh.
type Pair struct {
	PrincipalID      string
	FamilyID         string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
