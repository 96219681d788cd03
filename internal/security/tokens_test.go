package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenProvider_IssueAndParse(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	access, jti, exp, err := p.IssueAccess("alice", "fam-1")
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, jti)
	assert.True(t, exp.After(time.Now()))

	ac, err := p.ValidateAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "alice", ac.Subject)
	assert.Equal(t, "fam-1", ac.FamilyID)

	refresh, rexp, err := p.IssueRefresh("alice", "fam-1", "tok-1", 2)
	require.NoError(t, err)
	assert.True(t, rexp.After(exp))

	rc, err := p.ParseRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rc.ID)
	assert.Equal(t, "fam-1", rc.FamilyID)
	assert.Equal(t, 2, rc.Generation)
}

func TestTokenProvider_TypesAreNotInterchangeable(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)

	access, _, _, err := p.IssueAccess("alice", "fam-1")
	require.NoError(t, err)
	refresh, _, err := p.IssueRefresh("alice", "fam-1", "tok-1", 0)
	require.NoError(t, err)

	_, err = p.ParseRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = p.ValidateAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_Malformed(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)
	_, err = p.ParseRefresh("invalid-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = p.ValidateAccess("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_ForeignKeyRejected(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)
	other, err := NewTestTokenProvider()
	require.NoError(t, err)

	access, _, _, err := other.IssueAccess("alice", "fam-1")
	require.NoError(t, err)
	_, err = p.ValidateAccess(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_Expired(t *testing.T) {
	p, err := NewTestTokenProvider()
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	old := p.WithClock(func() time.Time { return past })

	refresh, _, err := old.IssueRefresh("alice", "fam-1", "tok-1", 0)
	require.NoError(t, err)
	access, _, _, err := old.IssueAccess("alice", "fam-1")
	require.NoError(t, err)

	rc, err := p.ParseRefresh(refresh)
	assert.ErrorIs(t, err, ErrExpiredToken)
	require.NotNil(t, rc)
	assert.Equal(t, "tok-1", rc.ID)

	_, err = p.ValidateAccess(access)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewOpaqueID_Unique(t *testing.T) {
	a, err := NewOpaqueID()
	require.NoError(t, err)
	b, err := NewOpaqueID()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
