package security

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/bcrypt"
)

// AlgoBcrypt is the hash algorithm version recorded next to every stored credential hash.
const AlgoBcrypt = "bcrypt"

// ErrMismatch is returned by Compare when the secret does not match the stored hash.
var ErrMismatch = errors.New("secret does not match")

// Hasher hashes and verifies secrets using bcrypt. Callers must not log or
// persist plaintext secrets.
type Hasher struct {
	Cost int

	// dummy is a hash at Cost used to spend comparable time when no stored hash exists.
	dummy []byte
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("identity-core/dummy-secret"), cost)
	return &Hasher{Cost: cost, dummy: dummy}
}

// Hash produces a bcrypt hash of secret suitable for storage.
func (h *Hasher) Hash(secret []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt hash")
	}
	return string(b), nil
}

// Compare verifies secret against the stored hash in constant time. Returns nil on match,
// ErrMismatch on mismatch, and a wrapped error when the stored hash is unusable.
func (h *Hasher) Compare(hash string, secret []byte) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), secret)
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return errors.Wrap(err, "bcrypt compare")
}

// CompareDummy runs a full bcrypt comparison against a throwaway hash so that a lookup
// miss costs about as much as a wrong secret. It always reports a mismatch.
func (h *Hasher) CompareDummy(secret []byte) error {
	_ = bcrypt.CompareHashAndPassword(h.dummy, secret)
	return ErrMismatch
}

// NeedsRehash reports whether hash was produced with a lower cost than the Hasher's
// or is not a bcrypt hash at all.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.Cost
}
