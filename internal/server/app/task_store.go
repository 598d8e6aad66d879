package app

import (
	"context"
	"sort"
	"sync"

	"agentloop/internal/server/ports"
)

// InMemoryTaskStore implements TaskStore with in-memory storage.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*ports.Task
}

// NewInMemoryTaskStore creates a new in-memory task store.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{tasks: make(map[string]*ports.Task)}
}

var _ ports.TaskStore = (*InMemoryTaskStore)(nil)

func (s *InMemoryTaskStore) Create(_ context.Context, task *ports.Task) error {
	if task == nil || task.ID == "" {
		return ValidationError("task id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return ConflictError("task already exists: " + task.ID)
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *InMemoryTaskStore) Get(_ context.Context, taskID string) (*ports.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, exists := s.tasks[taskID]
	if !exists {
		return nil, NotFoundError("task not found: " + taskID)
	}
	return task.Clone(), nil
}

func (s *InMemoryTaskStore) Update(_ context.Context, taskID string, mutate func(*ports.Task) error) (*ports.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.tasks[taskID]
	if !exists {
		return nil, NotFoundError("task not found: " + taskID)
	}
	next := task.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.tasks[taskID] = next
	return next.Clone(), nil
}

func (s *InMemoryTaskStore) List(_ context.Context, limit int, offset int) ([]*ports.Task, int, error) {
	s.mu.RLock()
	all := make([]*ports.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		all = append(all, task.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(all)
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*ports.Task{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (s *InMemoryTaskStore) ListBySession(_ context.Context, sessionID string) ([]*ports.Task, error) {
	s.mu.RLock()
	var out []*ports.Task
	for _, task := range s.tasks {
		if task.SessionID == sessionID {
			out = append(out, task.Clone())
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryTaskStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[taskID]; !exists {
		return NotFoundError("task not found: " + taskID)
	}
	delete(s.tasks, taskID)
	return nil
}

func sortNewestFirst(tasks []*ports.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
