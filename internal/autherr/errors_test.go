package autherr

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"invalid credentials", ErrInvalidCredentials, KindInvalidCredentials},
		{"wrapped locked", fmt.Errorf("login: %w", ErrAccountLocked), KindAccountLocked},
		{"invalid response", InvalidResponse(2), KindChallengeInvalidResponse},
		{"rate limited", RateLimited(time.Second), KindRateLimited},
		{"reuse", ErrTokenReuseDetected, KindTokenReuseDetected},
		{"foreign", fmt.Errorf("dial tcp: connection refused"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestBoundary_ConvertsInternalFaults(t *testing.T) {
	assert.NoError(t, Boundary(nil))
	assert.ErrorIs(t, Boundary(fmt.Errorf("pgx: timeout")), ErrStoreUnavailable)
	assert.ErrorIs(t, Boundary(ErrTokenRevoked), ErrTokenRevoked)
}

func TestInvalidResponse_ClampsNegative(t *testing.T) {
	n, ok := RemainingAttempts(InvalidResponse(-1))
	assert.True(t, ok)
	assert.Equal(t, 0, n)
}

func TestRateLimited_PositiveRetryAfter(t *testing.T) {
	d, ok := RetryAfter(RateLimited(0))
	assert.True(t, ok)
	assert.Greater(t, d, time.Duration(0))
}
