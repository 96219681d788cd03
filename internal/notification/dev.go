package notification

import (
	"context"
	"sync"
	"time"
)

// DevStore holds plaintext codes by challenge id for dev-only retrieval in place of delivery.
// Never used in production.
type DevStore struct {
	mu   sync.RWMutex
	m    map[string]devEntry
	nowF func() time.Time
}

type devEntry struct {
	code      string
	expiresAt time.Time
}

// NewDevStore returns an empty DevStore.
func NewDevStore() *DevStore {
	return &DevStore{m: make(map[string]devEntry), nowF: time.Now}
}

// Send stores msg.Code until msg.ExpiresAt.
func (s *DevStore) Send(_ context.Context, msg OneTimeCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[msg.ChallengeID] = devEntry{code: msg.Code, expiresAt: msg.ExpiresAt}
	return nil
}

// Get returns the code for challengeID if present and not expired.
func (s *DevStore) Get(challengeID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[challengeID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, challengeID)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
