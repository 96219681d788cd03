package repository

import (
	"context"
	"sync"
	"time"

	"identity-core/internal/token/domain"
)

// MemoryRepository is an in-process Repository for tests. One mutex serialises every method so
// Rotate keeps its compare-and-set semantics.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
	Err    error
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: map[string]*domain.RefreshToken{}}
}

func (r *MemoryRepository) Insert(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.put(t)
	return nil
}

func (r *MemoryRepository) put(t *domain.RefreshToken) {
	cp := *t
	if cp.Status == "" {
		cp.Status = domain.StatusActive
	}
	r.tokens[t.ID] = &cp
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.tokens[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) Rotate(_ context.Context, oldID, oldHash string, next *domain.RefreshToken, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	old, ok := r.tokens[oldID]
	if !ok || old.TokenHash != oldHash || !old.Usable(now) {
		return false, nil
	}
	at := now
	old.Status = domain.StatusRotated
	old.RotatedAt = &at
	r.put(next)
	return true, nil
}

func (r *MemoryRepository) RevokeFamily(_ context.Context, familyID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for _, t := range r.tokens {
		if t.FamilyID == familyID && (t.Status == domain.StatusActive || t.Status == domain.StatusRotated) {
			at := now
			t.Status = domain.StatusRevoked
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) RevokeByPrincipal(_ context.Context, principalID string, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var families []string
	seen := map[string]bool{}
	for _, t := range r.tokens {
		if t.PrincipalID != principalID || (t.Status != domain.StatusActive && t.Status != domain.StatusRotated) {
			continue
		}
		at := now
		t.Status = domain.StatusRevoked
		t.RevokedAt = &at
		if !seen[t.FamilyID] {
			seen[t.FamilyID] = true
			families = append(families, t.FamilyID)
		}
	}
	return families, nil
}

func (r *MemoryRepository) MarkExpired(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if t, ok := r.tokens[id]; ok && t.Status == domain.StatusActive && !now.Before(t.ExpiresAt) {
		t.Status = domain.StatusExpired
	}
	return nil
}

// Family returns copies of every record in a family. Test helper.
func (r *MemoryRepository) Family(familyID string) []domain.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RefreshToken
	for _, t := range r.tokens {
		if t.FamilyID == familyID {
			out = append(out, *t)
		}
	}
	return out
}
