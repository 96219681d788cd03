package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-core/internal/db/dbtest"
	"identity-core/internal/token/domain"
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

func record(id, family, principal string, gen int) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:          id,
		FamilyID:    family,
		PrincipalID: principal,
		Generation:  gen,
		TokenHash:   "hash-" + id,
		Status:      domain.StatusActive,
		IssuedAt:    t0,
		ExpiresAt:   t0.Add(time.Hour),
	}
}

func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("t1", "f1", "alice", 0)))
		got, err := repo.Get(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "f1", got.FamilyID)
		assert.Equal(t, domain.StatusActive, got.Status)
		assert.Empty(t, got.ParentID)

		missing, err := repo.Get(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("rotate is a one-shot compare-and-set", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("t1", "f1", "alice", 0)))
		next := record("t2", "f1", "alice", 1)
		next.ParentID = "t1"

		ok, err := repo.Rotate(ctx, "t1", "hash-t1", next, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		old, _ := repo.Get(ctx, "t1")
		assert.Equal(t, domain.StatusRotated, old.Status)
		child, _ := repo.Get(ctx, "t2")
		require.NotNil(t, child)
		assert.Equal(t, "t1", child.ParentID)
		assert.Equal(t, 1, child.Generation)

		ok, err = repo.Rotate(ctx, "t1", "hash-t1", record("t3", "f1", "alice", 1), t0.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)
		none, _ := repo.Get(ctx, "t3")
		assert.Nil(t, none)
	})

	t.Run("rotate refuses wrong hash and expired", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("t1", "f1", "alice", 0)))
		ok, err := repo.Rotate(ctx, "t1", "other", record("t2", "f1", "alice", 1), t0)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.Rotate(ctx, "t1", "hash-t1", record("t2", "f1", "alice", 1), t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.MarkExpired(ctx, "t1", t0.Add(2*time.Hour)))
		got, _ := repo.Get(ctx, "t1")
		assert.Equal(t, domain.StatusExpired, got.Status)
	})

	t.Run("concurrent rotations: exactly one wins", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("t1", "f1", "alice", 0)))
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := record("c"+string(rune('a'+i)), "f1", "alice", 1)
				ok, err := repo.Rotate(ctx, "t1", "hash-t1", next, t0)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("revoke family and by principal", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("a1", "fa", "alice", 0)))
		require.NoError(t, repo.Insert(ctx, record("a2", "fb", "alice", 0)))
		require.NoError(t, repo.Insert(ctx, record("b1", "fc", "bob", 0)))
		_, err := repo.Rotate(ctx, "a1", "hash-a1", record("a1n", "fa", "alice", 1), t0)
		require.NoError(t, err)

		n, err := repo.RevokeFamily(ctx, "fa", t0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		for _, id := range []string{"a1", "a1n"} {
			got, _ := repo.Get(ctx, id)
			assert.Equal(t, domain.StatusRevoked, got.Status, id)
		}

		families, err := repo.RevokeByPrincipal(ctx, "alice", t0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"fb"}, families)
		bob, _ := repo.Get(ctx, "b1")
		assert.Equal(t, domain.StatusActive, bob.Status)
	})
}

func TestRedisDenylist(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	d := NewRedisDenylist(client)
	ctx := context.Background()

	require.NoError(t, d.Add(ctx, time.Minute, "f1", "f2"))
	require.NoError(t, d.Add(ctx, time.Minute))
	ok, err := d.Contains(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.Contains(ctx, "f3")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = d.Contains(ctx, "f2")
	require.NoError(t, err)
	assert.False(t, ok)
}
