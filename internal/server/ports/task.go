package ports

import (
	"context"
	"time"

	"agentloop/internal/agent/domain"
)

// Task is the authoritative record of one submitted request.
type Task struct {
	ID            string            `json:"task_id"`
	SessionID     string            `json:"session_id"`
	Prompt        string            `json:"prompt"`
	Status        domain.TaskStatus `json:"status"`
	StepCount     int               `json:"step_count"`
	RetryCount    int               `json:"retry_count"`
	WorkspacePath string            `json:"workspace_path,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Answer        string            `json:"answer,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Clone returns a copy safe to hand to callers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		out.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

// TaskStore manages task records.
type TaskStore interface {
	// Create stores a new task. The ID must be unique.
	Create(ctx context.Context, task *Task) error

	// Get returns a copy of the task.
	Get(ctx context.Context, taskID string) (*Task, error)

	// Update applies mutate to the stored task under the store's lock and
	// returns the updated copy.
	Update(ctx context.Context, taskID string, mutate func(*Task) error) (*Task, error)

	// List returns tasks newest first with pagination and the total count.
	List(ctx context.Context, limit int, offset int) ([]*Task, int, error)

	// ListBySession returns a session's tasks newest first.
	ListBySession(ctx context.Context, sessionID string) ([]*Task, error)

	// Delete removes a task.
	Delete(ctx context.Context, taskID string) error
}
