package session

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long an idle conversation context is kept.
const DefaultTTL = 30 * time.Minute

type memoryEntry struct {
	ctx      *Context
	deadline time.Time
}

// MemoryStore is a TTL-bounded in-memory Store. Expired entries are swept
// on every write, so the map stays proportional to active users.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a memory store; ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the user's context, creating an empty one if absent or
// expired. Access extends the entry's deadline.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	entry, ok := s.entries[userID]
	if !ok || entry.deadline.Before(now) {
		entry = &memoryEntry{ctx: &Context{}}
		s.entries[userID] = entry
	}
	entry.deadline = now.Add(s.ttl)

	return entry.ctx, nil
}

// Put stores the user's context and sweeps expired entries.
func (s *MemoryStore) Put(_ context.Context, userID string, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[userID] = &memoryEntry{ctx: c, deadline: now.Add(s.ttl)}

	for id, entry := range s.entries {
		if entry.deadline.Before(now) {
			delete(s.entries, id)
		}
	}

	return nil
}
