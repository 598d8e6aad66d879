package memory

import (
	"context"
	"sync"
	"time"

	"agentloop/internal/agent/ports"
)

// InMemoryStore implements ports.MemoryStore for tests and the one-shot CLI.
type InMemoryStore struct {
	opts Options

	mu       sync.RWMutex
	records  map[string][]ports.MemoryEntry
	lastSeen map[string]time.Time
}

var _ ports.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an in-memory store.
func NewInMemoryStore(opts Options) *InMemoryStore {
	return &InMemoryStore{
		opts:     opts.withDefaults(),
		records:  make(map[string][]ports.MemoryEntry),
		lastSeen: make(map[string]time.Time),
	}
}

// Append records an entry for the session.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, entry ports.MemoryEntry) (ports.MemoryEntry, error) {
	entry = s.opts.prepare(sessionID, entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.records[sessionID], entry)
	if len(entries) > s.opts.MaxEntries {
		entries = append([]ports.MemoryEntry(nil), entries[len(entries)-s.opts.MaxEntries:]...)
	}
	s.records[sessionID] = entries
	s.lastSeen[sessionID] = s.opts.Now()
	return entry, nil
}

// Retrieve returns ranked entries for the session.
func (s *InMemoryStore) Retrieve(_ context.Context, sessionID string, keywords []string, limit int) ([]ports.MemoryEntry, error) {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	s.mu.RLock()
	entries := append([]ports.MemoryEntry(nil), s.records[sessionID]...)
	s.mu.RUnlock()
	return Rank(entries, keywords, limit), nil
}

// PruneIdle drops sessions idle beyond the policy horizon.
func (s *InMemoryStore) PruneIdle(_ context.Context, policy RetentionPolicy, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for sessionID, last := range s.lastSeen {
		if policy.IsIdle(last, now) {
			delete(s.records, sessionID)
			delete(s.lastSeen, sessionID)
			removed = append(removed, sessionID)
		}
	}
	return removed, nil
}
