package domain

import (
	"time"

	"agentloop/internal/agent/ports"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusQueued        TaskStatus = "queued"
	StatusRunning       TaskStatus = "running"
	StatusAwaitingRetry TaskStatus = "awaiting_retry"
	StatusSucceeded     TaskStatus = "succeeded"
	StatusFailed        TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// IsActive reports whether the task counts against the concurrency ceiling.
func (s TaskStatus) IsActive() bool {
	return s == StatusRunning || s == StatusAwaitingRetry
}

// TaskRun is what the engine needs to drive one task.
type TaskRun struct {
	TaskID    string
	SessionID string
	Prompt    string
	Workspace string
}

// Step is one reason-act-observe cycle.
type Step struct {
	Index       int
	Thought     string
	Action      ports.ActionKind
	ToolName    string
	ToolArgs    string
	Observation string
	IsError     bool
	// Correction marks a step whose action came from the self-correction policy.
	Correction bool
}

// RetryState tracks corrective retries for one error signature.
type RetryState struct {
	Signature string
	Attempts  int
	LastFix   string
}

// TerminalResult is the outcome of SolveTask. Err is nil on success and wraps
// one of the loop sentinels otherwise.
type TerminalResult struct {
	Status     TaskStatus
	Answer     string
	StepsTaken int
	Retries    int
	Steps      []Step
	Err        error
	Duration   time.Duration
}
