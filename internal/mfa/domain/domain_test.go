package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFactorType_Valid(t *testing.T) {
	for _, f := range []FactorType{FactorTOTP, FactorSMSOTP, FactorEmailOTP, FactorRecoveryCodes} {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, FactorType("push").Valid())
	assert.False(t, FactorType("").Valid())
}

func TestFactorType_Delivered(t *testing.T) {
	assert.True(t, FactorSMSOTP.Delivered())
	assert.True(t, FactorEmailOTP.Delivered())
	assert.False(t, FactorTOTP.Delivered())
	assert.False(t, FactorRecoveryCodes.Delivered())
}

func TestChallenge_RemainingAndExpiry(t *testing.T) {
	now := time.Now()
	c := &Challenge{MaxAttempts: 3, Attempts: 1, ExpiresAt: now.Add(time.Minute)}
	assert.Equal(t, 2, c.Remaining())
	c.Attempts = 5
	assert.Equal(t, 0, c.Remaining())

	assert.False(t, c.Expired(now))
	assert.True(t, c.Expired(now.Add(time.Minute)))
}
