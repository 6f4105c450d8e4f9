package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sliding request logs in process memory. Windows are
// reconstructed lazily; an identifier with no recent requests costs nothing.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string][]time.Time
}

// NewMemoryStore creates an in-process sliding-window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string][]time.Time)}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration, now time.Time) (bool, int, time.Time, error) {
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.m[key]
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	entries = entries[i:]

	allowed := len(entries) < limit
	if allowed {
		entries = append(entries, now)
	}

	if len(entries) == 0 {
		delete(s.m, key)
		return allowed, 0, time.Time{}, nil
	}
	s.m[key] = entries

	return allowed, len(entries), entries[0], nil
}
