// Package workspace allocates one isolated directory per task and removes it
// after a grace period.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentloop/internal/shared/logging"
	"agentloop/internal/shared/utils/id"
)

const (
	dirPrefix   = "task_"
	shortIDSize = 8
)

// Timer is the handle returned by Scheduler.AfterFunc.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The real implementation wraps
// time.AfterFunc; tests substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (realScheduler) Now() time.Time                            { return time.Now() }

// RealScheduler returns the wall-clock scheduler.
func RealScheduler() Scheduler { return realScheduler{} }

// Manager owns the workspace root directory.
type Manager struct {
	root      string
	delay     time.Duration
	scheduler Scheduler
	logger    logging.Logger

	mu      sync.Mutex
	pending map[string]Timer
	removed func(path string)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithRemovalHook is invoked after a workspace has been deleted.
func WithRemovalHook(hook func(path string)) Option {
	return func(m *Manager) { m.removed = hook }
}

// NewManager creates a manager rooted at root that removes workspaces delay
// after ScheduleCleanup.
func NewManager(root string, delay time.Duration, opts ...Option) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	m := &Manager{
		root:      abs,
		delay:     delay,
		scheduler: RealScheduler(),
		logger:    logging.NewComponentLogger("workspace"),
		pending:   make(map[string]Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Allocate creates the task's directory, named from a truncated task ID.
// The full ID is used if the short name is already taken.
func (m *Manager) Allocate(taskID string) (string, error) {
	candidates := []string{
		dirPrefix + id.ShortTaskID(taskID, shortIDSize),
		dirPrefix + id.ShortTaskID(taskID, 0),
	}
	for _, name := range candidates {
		path := filepath.Join(m.root, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			m.logger.Debug("Allocated workspace %s for %s", path, taskID)
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create workspace: %w", err)
		}
	}
	return "", fmt.Errorf("create workspace: %s already allocated", taskID)
}

// ScheduleCleanup removes path after the configured delay. Rescheduling the
// same path replaces the earlier timer.
func (m *Manager) ScheduleCleanup(path string) {
	if !m.owns(path) {
		m.logger.Warn("Refusing to schedule cleanup outside workspace root: %s", path)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.pending[path]; ok {
		existing.Stop()
	}
	m.pending[path] = m.scheduler.AfterFunc(m.delay, func() {
		m.mu.Lock()
		delete(m.pending, path)
		m.mu.Unlock()
		m.remove(path)
	})
}

// Pending reports how many cleanups are scheduled.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close stops every pending timer and removes those workspaces immediately.
func (m *Manager) Close() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.pending))
	for path, timer := range m.pending {
		timer.Stop()
		paths = append(paths, path)
	}
	m.pending = make(map[string]Timer)
	m.mu.Unlock()
	for _, path := range paths {
		m.remove(path)
	}
}

// SweepStale removes task directories left behind by a previous process whose
// modification time is older than the cleanup delay.
func (m *Manager) SweepStale() (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read workspace root: %w", err)
	}
	now := m.scheduler.Now()
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) <= m.delay {
			continue
		}
		m.remove(filepath.Join(m.root, entry.Name()))
		removed++
	}
	return removed, nil
}

func (m *Manager) remove(path string) {
	if err := os.RemoveAll(path); err != nil {
		m.logger.Warn("Failed to remove workspace %s: %v", path, err)
		return
	}
	m.logger.Debug("Removed workspace %s", path)
	if m.removed != nil {
		m.removed(path)
	}
}

func (m *Manager) owns(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.Contains(rel, string(filepath.Separator))
}
