package ports

import (
	"context"
	"time"
)

// MemoryKind classifies a retained fact.
type MemoryKind string

const (
	MemoryTaskResult   MemoryKind = "task_result"
	MemorySearchResult MemoryKind = "search_result"
)

// MemoryEntry is one append-only fact owned by a session.
type MemoryEntry struct {
	Key       string     `json:"key" yaml:"key"`
	SessionID string     `json:"session_id" yaml:"session_id"`
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
	Kind      MemoryKind `json:"kind" yaml:"kind"`
	Text      string     `json:"text" yaml:"text"`
	Keywords  []string   `json:"keywords" yaml:"keywords"`
}

// MemoryStore is the retrieval/append contract used by the loop engine.
type MemoryStore interface {
	// Retrieve returns up to limit entries, most relevant first.
	Retrieve(ctx context.Context, sessionID string, keywords []string, limit int) ([]MemoryEntry, error)
	Append(ctx context.Context, sessionID string, entry MemoryEntry) (MemoryEntry, error)
}
