package lock

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	expiresAt time.Time
}

// MemoryStore is an in-process lease store. Engines sharing one MemoryStore behave like
// members of a cluster sharing a lock service.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithNow replaces the clock, mostly for tests.
func WithNow(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		leases: make(map[string]lease),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// TryAcquire claims name until lease elapses. Expired leases are taken over.
func (s *MemoryStore) TryAcquire(ctx context.Context, name string, d time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key(name)

	if current, ok := s.leases[k]; ok && now.Before(current.expiresAt) {
		return false, nil
	}

	s.leases[k] = lease{expiresAt: now.Add(d)}
	s.sweep(now)

	return true, nil
}

// Held reports whether name is currently leased.
func (s *MemoryStore) Held(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leases[key(name)]

	return ok && s.now().Before(current.expiresAt)
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, l := range s.leases {
		if !now.Before(l.expiresAt) {
			delete(s.leases, k)
		}
	}
}
