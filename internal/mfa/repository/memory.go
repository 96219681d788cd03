package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"identity-core/internal/mfa/domain"
)

// MemoryRepository is an in-process Repository for tests and local tooling.
type MemoryRepository struct {
	mu          sync.Mutex
	enrollments map[string]*domain.Enrollment
	// Err, when set, is returned by every method.
	Err error
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{enrollments: map[string]*domain.Enrollment{}}
}

func (r *MemoryRepository) Create(_ context.Context, e *domain.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, x := range r.enrollments {
		if x.ID == e.ID || (x.PrincipalID == e.PrincipalID && x.FactorType == e.FactorType && x.Status != domain.EnrollmentRevoked) {
			return domain.ErrEnrollmentExists
		}
	}
	cp := *e
	r.enrollments[e.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*domain.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	e, ok := r.enrollments[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// sorted returns copies of the principal's enrollments matching keep, oldest first.
func (r *MemoryRepository) sorted(principalID string, keep func(*domain.Enrollment) bool) []*domain.Enrollment {
	var out []*domain.Enrollment
	for _, e := range r.enrollments {
		if e.PrincipalID == principalID && keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryRepository) ListByPrincipal(_ context.Context, principalID string) ([]*domain.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.sorted(principalID, func(e *domain.Enrollment) bool { return e.Status != domain.EnrollmentRevoked }), nil
}

func (r *MemoryRepository) Primary(_ context.Context, principalID string) (*domain.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	active := r.sorted(principalID, (*domain.Enrollment).Active)
	if len(active) == 0 {
		return nil, nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].IsPrimary != active[j].IsPrimary {
			return active[i].IsPrimary
		}
		ri := active[i].FactorType == domain.FactorRecoveryCodes
		rj := active[j].FactorType == domain.FactorRecoveryCodes
		return !ri && rj
	})
	return active[0], nil
}

func (r *MemoryRepository) Activate(_ context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	e, ok := r.enrollments[id]
	if !ok || e.Status != domain.EnrollmentPending {
		return false, nil
	}
	hasPrimary := false
	for _, x := range r.enrollments {
		if x.PrincipalID == e.PrincipalID && x.IsPrimary && x.Active() {
			hasPrimary = true
		}
	}
	e.Status = domain.EnrollmentActive
	e.IsPrimary = e.FactorType != domain.FactorRecoveryCodes && !hasPrimary
	e.UpdatedAt = now
	return true, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, principalID, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	e, ok := r.enrollments[id]
	if !ok || e.PrincipalID != principalID || e.Status == domain.EnrollmentRevoked {
		return false, nil
	}
	e.Status = domain.EnrollmentRevoked
	e.IsPrimary = false
	e.UpdatedAt = now
	return true, nil
}

func (r *MemoryRepository) ConsumeRecoveryCode(_ context.Context, id, codeHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	e, ok := r.enrollments[id]
	if !ok || !e.Active() || e.FactorType != domain.FactorRecoveryCodes || e.Secret == "" {
		return false, nil
	}
	hashes := strings.Split(e.Secret, ",")
	for i, h := range hashes {
		if h == codeHash {
			e.Secret = strings.Join(append(hashes[:i], hashes[i+1:]...), ",")
			e.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}
