package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map and per-entry
// expiry. It backs tests and cache-less operation when no redis server
// is configured; entries do not survive the process.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]memoryEntry
	closed bool

	// Metrics
	stats Stats

	// Injectable clock for expiry tests
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// Get retrieves a value, lazily evicting it if its TTL has passed.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, ErrClosed
	}

	entry, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		return "", false, nil
	}

	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.items, key)
		s.stats.Expired++
		s.stats.Misses++
		return "", false, nil
	}

	s.stats.Hits++
	return entry.value, true, nil
}

// Set stores a value with the given TTL. A zero TTL means no expiry.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.items[key] = entry
	s.stats.Sets++
	return nil
}

// Close marks the store closed and drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.items = nil
	return nil
}

// Len returns the number of live entries, expired ones included until
// their next lookup.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Stats returns a snapshot of cache metrics.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.ItemCount = int64(len(s.items))
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// setClock overrides the expiry clock. Test hook.
func (s *MemoryStore) setClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
