// Package devotp keeps plain phone-change codes in memory for dev OTP mode, where no email is sent
// and the requesting user reads the code back from GET /identity/api/v2/dev/phone-otp.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds the latest plain OTP per user id. Not used in production.
type Store interface {
	// Put stores otp for userID until expiresAt, replacing any earlier code.
	Put(ctx context.Context, userID, otp string, expiresAt time.Time)
	// Get returns the otp for userID if present and not expired.
	Get(ctx context.Context, userID string) (otp string, ok bool)
	// Delete drops the code for userID, e.g. once the change is verified.
	Delete(ctx context.Context, userID string)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores otp for userID until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, userID, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for userID if present and not expired. Expired entries are evicted.
func (s *MemoryStore) Get(ctx context.Context, userID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[userID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		if cur, still := s.m[userID]; still && cur == e {
			delete(s.m, userID)
		}
		s.mu.Unlock()
		return "", false
	}
	return e.otp, true
}

// Delete removes the code for userID. Missing keys are ignored.
func (s *MemoryStore) Delete(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
