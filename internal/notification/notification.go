// Package notification delivers one-time codes for delivered MFA factors. Delivery is
// fire-and-forget for callers: Router.Notify returns immediately and failures are only logged.
package notification

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	mfadomain "identity-core/internal/mfa/domain"
)

// ErrNoChannel is returned when no sender is configured for a factor.
var ErrNoChannel = errors.New("notification: no channel for factor")

// OneTimeCode is a code to deliver to a principal. Code is plaintext and must never be logged.
type OneTimeCode struct {
	PrincipalID string               `json:"principal_id"`
	ChallengeID string               `json:"challenge_id"`
	Factor      mfadomain.FactorType `json:"factor_type"`
	Destination string               `json:"destination"`
	Code        string               `json:"code"`
	ExpiresAt   time.Time            `json:"expires_at"`
}

// Sender delivers a code over one channel.
type Sender interface {
	Send(ctx context.Context, msg OneTimeCode) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg OneTimeCode) error

func (f SenderFunc) Send(ctx context.Context, msg OneTimeCode) error { return f(ctx, msg) }
