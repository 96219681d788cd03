package repository

import (
	"context"
	"sync"
	"time"

	"identity-core/internal/principal/domain"
)

// MemoryRepository is an in-process Repository for tests and local tooling. Each method holds
// the mutex for its whole read-modify-write, mirroring the single-statement Postgres updates.
type MemoryRepository struct {
	mu         sync.Mutex
	principals map[string]*domain.Principal
	// Err, when set, is returned by every method.
	Err error
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{principals: map[string]*domain.Principal{}}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.principals[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) Create(_ context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.principals[p.ID]; ok {
		return domain.ErrPrincipalExists
	}
	cp := *p
	r.principals[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) RecordFailure(_ context.Context, id string, now time.Time, policy domain.LockoutPolicy) (*domain.FailureOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.principals[id]
	if !ok {
		return nil, nil
	}
	cutoff := now.Add(-policy.Window)
	expiredLock := p.Status == domain.StatusLocked && p.LockedUntil != nil && !p.LockedUntil.After(now)
	fresh := p.FailedWindowStart == nil || !p.FailedWindowStart.After(cutoff) || expiredLock
	liveLock := p.IsLocked(now)

	attempts := p.FailedAttempts + 1
	if fresh {
		attempts = 1
		start := now
		p.FailedWindowStart = &start
	}
	p.FailedAttempts = attempts
	switch {
	case p.Status == domain.StatusDisabled || liveLock:
	case attempts >= policy.Threshold:
		until := now.Add(policy.Duration)
		p.Status = domain.StatusLocked
		p.LockedUntil = &until
	default:
		p.Status = domain.StatusActive
		p.LockedUntil = nil
	}
	p.UpdatedAt = now
	return &domain.FailureOutcome{Attempts: p.FailedAttempts, Status: p.Status, LockedUntil: p.LockedUntil}, nil
}

func (r *MemoryRepository) RecordSuccess(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	p, ok := r.principals[id]
	if !ok {
		return nil
	}
	p.FailedAttempts = 0
	p.FailedWindowStart = nil
	if p.Status == domain.StatusLocked && p.LockedUntil != nil && !p.LockedUntil.After(now) {
		p.Status = domain.StatusActive
		p.LockedUntil = nil
	}
	last := now
	p.LastLoginAt = &last
	p.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) UpdateSecretHash(_ context.Context, id, hash, algo string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	p, ok := r.principals[id]
	if !ok {
		return false, nil
	}
	p.SecretHash = hash
	p.HashAlgo = algo
	p.UpdatedAt = now
	return true, nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, id string, status domain.Status, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	p, ok := r.principals[id]
	if !ok {
		return false, nil
	}
	p.Status = status
	p.LockedUntil = nil
	p.FailedAttempts = 0
	p.FailedWindowStart = nil
	p.UpdatedAt = now
	return true, nil
}
