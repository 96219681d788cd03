package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// Test token lifetimes used by NewTestTokenProvider.
const (
	TestAccessTTL  = 15 * time.Minute
	TestRefreshTTL = 24 * time.Hour
)

// NewTestTokenProvider returns a TokenProvider signing with a freshly generated P-256 key.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, key.Public(), "test-issuer", "test-audience", TestAccessTTL, TestRefreshTTL)
}
