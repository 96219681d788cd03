package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestLoginPolicy_Default(t *testing.T) {
	p, err := NewLoginPolicy(context.Background(), "", nil)
	require.NoError(t, err)
	require.NoError(t, p.HealthCheck(context.Background()))

	d := p.Evaluate(context.Background(), LoginInput{PrincipalID: "alice", Now: now})
	assert.Equal(t, LoginDecision{Allow: true}, d)

	d = p.Evaluate(context.Background(), LoginInput{PrincipalID: "alice", MFAEnrolled: true, Now: now})
	assert.Equal(t, LoginDecision{Allow: true, MFARequired: true}, d)
}

const strictPolicy = `package identity.login

default allow := true

allow := false if {
	startswith(input.source.ip, "203.0.113.")
}

default reason := ""

reason := "blocked_network" if {
	not allow
}

default mfa_required := false

mfa_required if {
	input.principal.dormant_days > 90
}
`

func TestLoginPolicy_Custom(t *testing.T) {
	p, err := NewLoginPolicy(context.Background(), strictPolicy, nil)
	require.NoError(t, err)

	d := p.Evaluate(context.Background(), LoginInput{PrincipalID: "alice", SourceIP: "203.0.113.7", Now: now})
	assert.False(t, d.Allow)
	assert.Equal(t, "blocked_network", d.Reason)

	last := now.Add(-120 * 24 * time.Hour)
	d = p.Evaluate(context.Background(), LoginInput{PrincipalID: "alice", SourceIP: "10.0.0.1", LastLoginAt: &last, Now: now})
	assert.True(t, d.Allow)
	assert.True(t, d.MFARequired)
}

func TestLoginPolicy_CannotWaiveEnrolledMFA(t *testing.T) {
	src := `package identity.login

allow := true

mfa_required := false
`
	p, err := NewLoginPolicy(context.Background(), src, nil)
	require.NoError(t, err)
	d := p.Evaluate(context.Background(), LoginInput{PrincipalID: "alice", MFAEnrolled: true, Now: now})
	assert.True(t, d.MFARequired)
}

func TestLoginPolicy_CompileError(t *testing.T) {
	_, err := NewLoginPolicy(context.Background(), "package identity.login\n\nallow := {", nil)
	assert.Error(t, err)
}

func TestLoadLoginPolicy(t *testing.T) {
	_, err := LoadLoginPolicy(context.Background(), t.TempDir()+"/missing.rego", nil)
	assert.Error(t, err)

	p, err := LoadLoginPolicy(context.Background(), "", nil)
	require.NoError(t, err)
	assert.True(t, p.Evaluate(context.Background(), LoginInput{Now: now}).Allow)
}
