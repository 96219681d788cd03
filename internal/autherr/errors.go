// Package autherr defines the error taxonomy returned across the authentication core boundary.
// Lower layers return these values directly when the outcome is part of the taxonomy; anything
// else is converted to ErrStoreUnavailable by the orchestrator before it reaches a caller.
package autherr

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind classifies a taxonomy error.
type Kind string

const (
	KindUnknown                    Kind = ""
	KindInvalidCredentials         Kind = "invalid_credentials"
	KindAccountLocked              Kind = "account_locked"
	KindChallengeExpired           Kind = "challenge_expired"
	KindChallengeAttemptsExhausted Kind = "challenge_attempts_exhausted"
	KindChallengeInvalidResponse   Kind = "challenge_invalid_response"
	KindTokenExpired               Kind = "token_expired"
	KindTokenRevoked               Kind = "token_revoked"
	KindTokenReuseDetected         Kind = "token_reuse_detected"
	KindRateLimited                Kind = "rate_limited"
	KindStoreUnavailable           Kind = "store_unavailable"
)

// Sentinel taxonomy errors. InvalidCredentials never distinguishes a missing principal from a wrong secret.
var (
	ErrInvalidCredentials         = errors.New("invalid credentials")
	ErrAccountLocked              = errors.New("account locked")
	ErrChallengeExpired           = errors.New("challenge expired")
	ErrChallengeAttemptsExhausted = errors.New("challenge attempts exhausted")
	ErrTokenExpired               = errors.New("token expired")
	ErrTokenRevoked               = errors.New("token revoked")
	ErrTokenReuseDetected         = errors.New("refresh token reuse detected; session family revoked")
	ErrStoreUnavailable           = errors.New("store unavailable")
)

// ChallengeInvalidResponseError reports a wrong MFA response and how many attempts remain.
type ChallengeInvalidResponseError struct {
	Remaining int
}

func (e *ChallengeInvalidResponseError) Error() string {
	return fmt.Sprintf("invalid challenge response (%d attempts remaining)", e.Remaining)
}

// RateLimitedError reports a denied admission and when the caller may retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited; retry after %s", e.RetryAfter)
}

// InvalidResponse returns a ChallengeInvalidResponseError with the given remaining attempts.
func InvalidResponse(remaining int) error {
	if remaining < 0 {
		remaining = 0
	}
	return &ChallengeInvalidResponseError{Remaining: remaining}
}

// RateLimited returns a RateLimitedError. retryAfter is clamped to at least one millisecond so a
// denied caller always receives a positive hint.
func RateLimited(retryAfter time.Duration) error {
	if retryAfter < time.Millisecond {
		retryAfter = time.Millisecond
	}
	return &RateLimitedError{RetryAfter: retryAfter}
}

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrAccountLocked, KindAccountLocked},
	{ErrChallengeExpired, KindChallengeExpired},
	{ErrChallengeAttemptsExhausted, KindChallengeAttemptsExhausted},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenRevoked, KindTokenRevoked},
	{ErrTokenReuseDetected, KindTokenReuseDetected},
	{ErrStoreUnavailable, KindStoreUnavailable},
}

// KindOf returns the taxonomy kind of err, or KindUnknown if err is not part of the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ir *ChallengeInvalidResponseError
	if errors.As(err, &ir) {
		return KindChallengeInvalidResponse
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return KindRateLimited
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// IsTaxonomy reports whether err belongs to the taxonomy.
func IsTaxonomy(err error) bool {
	return KindOf(err) != KindUnknown
}

// Boundary returns err unchanged if it belongs to the taxonomy; otherwise it returns
// ErrStoreUnavailable. The internal fault is dropped so no store or cache error type crosses
// the core boundary; callers log it before converting.
func Boundary(err error) error {
	if err == nil {
		return nil
	}
	if IsTaxonomy(err) {
		return err
	}
	return ErrStoreUnavailable
}

// RemainingAttempts extracts the remaining attempts from a ChallengeInvalidResponseError.
func RemainingAttempts(err error) (int, bool) {
	var ir *ChallengeInvalidResponseError
	if errors.As(err, &ir) {
		return ir.Remaining, true
	}
	return 0, false
}

// RetryAfter extracts the retry hint from a RateLimitedError.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
