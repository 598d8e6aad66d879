package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"agentloop/internal/agent/ports"
	"agentloop/internal/shared/logging"
	"agentloop/internal/shared/utils/id"
)

const sessionFileExt = ".yaml"

// FileStore persists each session as one multi-document YAML file under dir.
// Writes to a session are serialized by a per-session lock; different
// sessions never contend.
type FileStore struct {
	dir    string
	opts   Options
	logger logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ ports.MemoryStore = (*FileStore)(nil)

// NewFileStore creates a file-backed memory store rooted at dir.
func NewFileStore(dir string, opts Options) *FileStore {
	return &FileStore{
		dir:    dir,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger("memory"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// EnsureSchema creates the store directory.
func (s *FileStore) EnsureSchema(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	return nil
}

func (s *FileStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func (s *FileStore) sessionPath(sessionID string) (string, error) {
	if err := id.ValidSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, sessionID+sessionFileExt), nil
}

// Append writes one entry to the session file, trimming the oldest entries
// once the session holds more than MaxEntries.
func (s *FileStore) Append(ctx context.Context, sessionID string, entry ports.MemoryEntry) (ports.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return ports.MemoryEntry{}, err
	}
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return ports.MemoryEntry{}, err
	}
	entry = s.opts.prepare(sessionID, entry)

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return entry, fmt.Errorf("create memory dir: %w", err)
	}

	existing, err := readSessionFile(path)
	if err != nil {
		return entry, err
	}
	if len(existing)+1 > s.opts.MaxEntries {
		keep := append(existing, entry)
		keep = keep[len(keep)-s.opts.MaxEntries:]
		if err := writeSessionFile(path, keep); err != nil {
			return entry, err
		}
		s.logger.Debug("Trimmed session %s memory to %d entries", sessionID, len(keep))
		return entry, nil
	}

	doc, err := encodeDocument(entry)
	if err != nil {
		return entry, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return entry, fmt.Errorf("open memory file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(doc); err != nil {
		return entry, fmt.Errorf("write memory file: %w", err)
	}
	return entry, nil
}

// Retrieve returns up to limit entries of the session ranked by keyword overlap.
func (s *FileStore) Retrieve(ctx context.Context, sessionID string, keywords []string, limit int) ([]ports.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	entries, err := readSessionFile(path)
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	return Rank(entries, keywords, limit), nil
}

// PruneIdle removes the files of sessions whose last write is older than
// policy.IdleHorizon and returns their session IDs.
func (s *FileStore) PruneIdle(ctx context.Context, policy RetentionPolicy, now time.Time) ([]string, error) {
	if !policy.HasRules() {
		return nil, nil
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read memory dir: %w", err)
	}

	var removed []string
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, sessionFileExt) {
			continue
		}
		sessionID := strings.TrimSuffix(name, sessionFileExt)

		lock := s.sessionLock(sessionID)
		lock.Lock()
		info, statErr := de.Info()
		if statErr != nil || !policy.IsIdle(info.ModTime(), now) {
			lock.Unlock()
			continue
		}
		rmErr := os.Remove(filepath.Join(s.dir, name))
		lock.Unlock()
		if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("Failed to remove idle session %s: %v", sessionID, rmErr)
			continue
		}
		removed = append(removed, sessionID)
	}
	return removed, nil
}

func encodeDocument(entry ports.MemoryEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(entry); err != nil {
		return nil, fmt.Errorf("marshal memory entry: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal memory entry: %w", err)
	}
	return buf.Bytes(), nil
}

func readSessionFile(path string) ([]ports.MemoryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open memory file: %w", err)
	}
	defer f.Close()

	var entries []ports.MemoryEntry
	dec := yaml.NewDecoder(f)
	for {
		var entry ports.MemoryEntry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("decode memory file %s: %w", filepath.Base(path), err)
		}
		if entry.Key == "" && entry.Text == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func writeSessionFile(path string, entries []ports.MemoryEntry) error {
	var buf bytes.Buffer
	for _, entry := range entries {
		doc, err := encodeDocument(entry)
		if err != nil {
			return err
		}
		buf.Write(doc)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}
