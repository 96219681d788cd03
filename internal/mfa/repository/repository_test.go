package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-core/internal/db/dbtest"
	"identity-core/internal/mfa/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryRepository(t *testing.T) {
	runContract(t, func(t *testing.T) Repository { return NewMemoryRepository() })
}

func TestPostgresRepository(t *testing.T) {
	pool := dbtest.Postgres(t)
	runContract(t, func(t *testing.T) Repository {
		dbtest.Reset(t, pool)
		dbtest.SeedPrincipals(t, pool, "alice", "bob")
		return NewPostgresRepository(pool)
	})
}

func enrollment(id, principal string, factor domain.FactorType, offset time.Duration) *domain.Enrollment {
	return &domain.Enrollment{
		ID:          id,
		PrincipalID: principal,
		FactorType:  factor,
		Status:      domain.EnrollmentPending,
		CreatedAt:   t0.Add(offset),
		UpdatedAt:   t0.Add(offset),
	}
}

func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("create get and duplicate", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		e := enrollment("e1", "alice", domain.FactorTOTP, 0)
		e.Secret = "JBSWY3DPEHPK3PXP"
		require.NoError(t, repo.Create(ctx, e))

		got, err := repo.Get(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.FactorTOTP, got.FactorType)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", got.Secret)
		assert.Equal(t, domain.EnrollmentPending, got.Status)

		assert.ErrorIs(t, repo.Create(ctx, enrollment("e2", "alice", domain.FactorTOTP, time.Second)), domain.ErrEnrollmentExists)
		require.NoError(t, repo.Create(ctx, enrollment("e3", "bob", domain.FactorTOTP, time.Second)))

		missing, err := repo.Get(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("activate sets first primary only", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, enrollment("sms", "alice", domain.FactorSMSOTP, 0)))
		require.NoError(t, repo.Create(ctx, enrollment("totp", "alice", domain.FactorTOTP, time.Second)))

		none, err := repo.Primary(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, none, "pending enrollments do not gate login")

		ok, err := repo.Activate(ctx, "totp", t0)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = repo.Activate(ctx, "sms", t0)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = repo.Activate(ctx, "sms", t0)
		require.NoError(t, err)
		assert.False(t, ok, "already active")

		primary, err := repo.Primary(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, primary)
		assert.Equal(t, "totp", primary.ID)
		assert.True(t, primary.IsPrimary)

		list, err := repo.ListByPrincipal(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "sms", list[0].ID)
		assert.False(t, list[0].IsPrimary)
	})

	t.Run("revoke falls back to oldest active", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, enrollment("rc", "alice", domain.FactorRecoveryCodes, 0)))
		require.NoError(t, repo.Create(ctx, enrollment("totp", "alice", domain.FactorTOTP, time.Second)))
		require.NoError(t, repo.Create(ctx, enrollment("email", "alice", domain.FactorEmailOTP, 2*time.Second)))
		for _, id := range []string{"rc", "totp", "email"} {
			_, err := repo.Activate(ctx, id, t0)
			require.NoError(t, err)
		}

		ok, err := repo.Revoke(ctx, "bob", "totp", t0)
		require.NoError(t, err)
		assert.False(t, ok, "other principal")
		ok, err = repo.Revoke(ctx, "alice", "totp", t0)
		require.NoError(t, err)
		assert.True(t, ok)

		primary, err := repo.Primary(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, primary)
		assert.Equal(t, "email", primary.ID, "recovery codes rank last")

		_, err = repo.Revoke(ctx, "alice", "email", t0)
		require.NoError(t, err)
		primary, err = repo.Primary(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, primary)
		assert.Equal(t, "rc", primary.ID)

		require.NoError(t, repo.Create(ctx, enrollment("totp2", "alice", domain.FactorTOTP, 3*time.Second)),
			"revoked enrollment frees the factor slot")
	})

	t.Run("recovery codes are single use", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		e := enrollment("rc", "alice", domain.FactorRecoveryCodes, 0)
		e.Secret = "h1,h2,h3"
		require.NoError(t, repo.Create(ctx, e))

		ok, err := repo.ConsumeRecoveryCode(ctx, "rc", "h2", t0)
		require.NoError(t, err)
		assert.False(t, ok, "pending set")

		_, err = repo.Activate(ctx, "rc", t0)
		require.NoError(t, err)
		ok, err = repo.ConsumeRecoveryCode(ctx, "rc", "h2", t0)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.ConsumeRecoveryCode(ctx, "rc", "h2", t0)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.ConsumeRecoveryCode(ctx, "rc", "h", t0)
		require.NoError(t, err)
		assert.False(t, ok, "no prefix match")

		got, err := repo.Get(ctx, "rc")
		require.NoError(t, err)
		assert.Equal(t, "h1,h3", got.Secret)
	})
}
