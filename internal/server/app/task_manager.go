package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agentloop/internal/agent/domain"
	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/memory"
	"agentloop/internal/observability"
	"agentloop/internal/server/ports"
	"agentloop/internal/shared/logging"
	id "agentloop/internal/shared/utils/id"
	"agentloop/internal/tools"
	"agentloop/internal/workspace"
)

const cancelledReason = "cancelled by user"

// TaskManagerDeps are the collaborators a TaskManager drives.
type TaskManagerDeps struct {
	Engine     *domain.ReactEngine
	Reasoning  agentports.ReasoningClient
	Dispatcher *tools.Dispatcher
	Memory     agentports.MemoryStore
	Workspaces *workspace.Manager
	Store      ports.TaskStore
	Admission  *AdmissionController
	Events     *EventBroadcaster
}

// TaskManagerOption customizes a TaskManager.
type TaskManagerOption func(*TaskManager)

// WithMetrics records task lifecycle metrics.
func WithMetrics(m *observability.Metrics) TaskManagerOption {
	return func(tm *TaskManager) { tm.metrics = m }
}

// WithScheduler replaces the timer source used for record purging.
func WithScheduler(s workspace.Scheduler) TaskManagerOption {
	return func(tm *TaskManager) { tm.scheduler = s }
}

// WithRecordRetention sets how long a finished task record is kept.
func WithRecordRetention(d time.Duration) TaskManagerOption {
	return func(tm *TaskManager) { tm.retention = d }
}

// WithMemoryRetention enables idle-session sweeps of the memory store.
func WithMemoryRetention(policy memory.RetentionPolicy) TaskManagerOption {
	return func(tm *TaskManager) { tm.memoryPolicy = policy }
}

// WithTaskLogger overrides the manager logger.
func WithTaskLogger(logger logging.Logger) TaskManagerOption {
	return func(tm *TaskManager) { tm.logger = logging.OrNop(logger) }
}

// TaskManager owns task records and their lifecycle: admission, one
// goroutine per task, cancellation and cleanup.
type TaskManager struct {
	deps         TaskManagerDeps
	metrics      *observability.Metrics
	scheduler    workspace.Scheduler
	retention    time.Duration
	memoryPolicy memory.RetentionPolicy
	logger       logging.Logger

	baseCtx    context.Context
	stopAll    context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	cancels    map[string]context.CancelFunc
	purgeTimer map[string]workspace.Timer
}

// NewTaskManager validates deps and creates a manager.
func NewTaskManager(deps TaskManagerDeps, opts ...TaskManagerOption) (*TaskManager, error) {
	switch {
	case deps.Engine == nil:
		return nil, fmt.Errorf("task manager: engine is required")
	case deps.Reasoning == nil:
		return nil, fmt.Errorf("task manager: reasoning client is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("task manager: dispatcher is required")
	case deps.Workspaces == nil:
		return nil, fmt.Errorf("task manager: workspace manager is required")
	}
	if deps.Store == nil {
		deps.Store = NewInMemoryTaskStore()
	}
	if deps.Admission == nil {
		deps.Admission = NewAdmissionController(AdmissionConfig{})
	}
	if deps.Events == nil {
		deps.Events = NewEventBroadcaster()
	}
	ctx, cancel := context.WithCancel(context.Background())
	tm := &TaskManager{
		deps:       deps,
		scheduler:  workspace.RealScheduler(),
		retention:  5 * time.Minute,
		logger:     logging.NewComponentLogger("TaskManager"),
		baseCtx:    ctx,
		stopAll:    cancel,
		cancels:    make(map[string]context.CancelFunc),
		purgeTimer: make(map[string]workspace.Timer),
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Events exposes the broadcaster for transports.
func (m *TaskManager) Events() *EventBroadcaster {
	return m.deps.Events
}

// Submit admits a task and starts it on its own goroutine. An empty session
// ID gets a fresh one.
func (m *TaskManager) Submit(ctx context.Context, prompt, sessionID string) (*ports.Task, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ValidationError("prompt is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = id.NewSessionID()
	} else if err := id.ValidSessionID(sessionID); err != nil {
		return nil, ValidationError(err.Error())
	}

	release, err := m.deps.Admission.Admit()
	if err != nil {
		m.metrics.TaskRejected(rejectReason(err))
		m.logger.Warn("Rejected submission for session %s: %v", sessionID, err)
		return nil, err
	}

	taskID := id.NewTaskID()
	path, err := m.deps.Workspaces.Allocate(taskID)
	if err != nil {
		release()
		return nil, fmt.Errorf("allocate workspace: %w", err)
	}

	task := &ports.Task{
		ID:            taskID,
		SessionID:     sessionID,
		Prompt:        prompt,
		Status:        domain.StatusQueued,
		WorkspacePath: path,
		CreatedAt:     m.scheduler.Now(),
	}
	if err := m.deps.Store.Create(ctx, task); err != nil {
		release()
		m.deps.Workspaces.ScheduleCleanup(path)
		return nil, fmt.Errorf("create task: %w", err)
	}
	m.deps.Events.Open(taskID)
	m.metrics.TaskSubmitted()

	taskCtx, cancel := context.WithCancel(m.baseCtx)
	taskCtx = id.WithTaskID(id.WithSessionID(taskCtx, sessionID), taskID)
	m.mu.Lock()
	m.cancels[taskID] = cancel
	m.mu.Unlock()

	m.logger.Info("Task %s admitted for session %s", taskID, sessionID)
	m.wg.Add(1)
	go m.run(taskCtx, task.Clone(), release)
	return task.Clone(), nil
}

func (m *TaskManager) run(ctx context.Context, task *ports.Task, release func()) {
	defer m.wg.Done()
	defer release()
	defer m.forgetCancel(task.ID)

	started := m.scheduler.Now()
	_, _ = m.deps.Store.Update(ctx, task.ID, func(t *ports.Task) error {
		if t.Status == domain.StatusQueued {
			t.Status = domain.StatusRunning
		}
		t.StartedAt = &started
		return nil
	})

	result := m.solve(ctx, task)

	completed := m.scheduler.Now()
	updated, err := m.deps.Store.Update(context.WithoutCancel(ctx), task.ID, func(t *ports.Task) error {
		t.StepCount = result.StepsTaken
		t.RetryCount = result.Retries
		t.CompletedAt = &completed
		if t.Status.IsTerminal() {
			return nil
		}
		t.Status = result.Status
		if result.Status == domain.StatusSucceeded {
			t.Answer = result.Answer
		} else {
			t.Error = result.Answer
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("Failed to record result of task %s: %v", task.ID, err)
	}
	status := result.Status
	if updated != nil {
		status = updated.Status
	}
	m.metrics.TaskFinished(string(status), result.StepsTaken, completed.Sub(started))
	m.logger.Info("Task %s %s", task.ID, result.Summary())

	m.deps.Workspaces.ScheduleCleanup(task.WorkspacePath)
	m.schedulePurge(task.ID)
}

// solve runs the engine and converts a panic into a failed result so the
// task still reports exactly one terminal event.
func (m *TaskManager) solve(ctx context.Context, task *ports.Task) (result domain.TerminalResult) {
	listener := agentports.EventListenerFunc(func(event agentports.Event) {
		m.track(event)
		m.deps.Events.OnEvent(event)
	})
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Task %s panicked: %v", task.ID, r)
			result = domain.TerminalResult{Status: domain.StatusFailed, Answer: fmt.Sprintf("Internal error: %v", r)}
			listener.OnEvent(agentports.Event{
				Type:      agentports.EventError,
				TaskID:    task.ID,
				SessionID: task.SessionID,
				Content:   result.Answer,
				Status:    string(domain.StatusFailed),
				Timestamp: m.scheduler.Now(),
			})
		}
	}()

	run := domain.TaskRun{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Prompt:    task.Prompt,
		Workspace: task.WorkspacePath,
	}
	return m.deps.Engine.SolveTask(ctx, run, domain.Services{
		Reasoning: m.deps.Reasoning,
		Tools: m.deps.Dispatcher.Scoped(tools.Scope{
			TaskID:    task.ID,
			SessionID: task.SessionID,
			Workspace: task.WorkspacePath,
		}),
		Memory:   m.deps.Memory,
		Listener: listener,
	})
}

// track mirrors loop progress into the task record.
func (m *TaskManager) track(event agentports.Event) {
	switch event.Type {
	case agentports.EventStatus:
		status := domain.TaskStatus(event.Status)
		if status != domain.StatusRunning && status != domain.StatusAwaitingRetry {
			return
		}
		_, _ = m.deps.Store.Update(context.Background(), event.TaskID, func(t *ports.Task) error {
			if !t.Status.IsTerminal() {
				t.Status = status
			}
			return nil
		})
	case agentports.EventThought:
		_, _ = m.deps.Store.Update(context.Background(), event.TaskID, func(t *ports.Task) error {
			if event.Step > t.StepCount {
				t.StepCount = event.Step
			}
			return nil
		})
	case agentports.EventSelfCorrection:
		m.metrics.SelfCorrection(event.ToolName)
		_, _ = m.deps.Store.Update(context.Background(), event.TaskID, func(t *ports.Task) error {
			t.RetryCount++
			return nil
		})
	}
}

// Subscribe attaches to a task's event stream.
func (m *TaskManager) Subscribe(ctx context.Context, taskID string) (*Subscription, error) {
	if _, err := m.deps.Store.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return m.deps.Events.Subscribe(taskID), nil
}

// Cancel marks a task failed and signals its loop, which stops after the
// current tool call returns. The execution slot is released when the loop
// exits.
func (m *TaskManager) Cancel(ctx context.Context, taskID string) (*ports.Task, error) {
	task, err := m.deps.Store.Update(ctx, taskID, func(t *ports.Task) error {
		if t.Status.IsTerminal() {
			return ConflictError(fmt.Sprintf("task %s already %s", t.ID, t.Status))
		}
		t.Status = domain.StatusFailed
		t.Error = cancelledReason
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	cancel, ok := m.cancels[taskID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	m.logger.Info("Task %s cancelled", taskID)
	return task, nil
}

// Get returns a task record.
func (m *TaskManager) Get(ctx context.Context, taskID string) (*ports.Task, error) {
	return m.deps.Store.Get(ctx, taskID)
}

// List returns tasks newest first, optionally limited to one session.
func (m *TaskManager) List(ctx context.Context, sessionID string, limit, offset int) ([]*ports.Task, int, error) {
	if sessionID != "" {
		tasks, err := m.deps.Store.ListBySession(ctx, sessionID)
		return tasks, len(tasks), err
	}
	return m.deps.Store.List(ctx, limit, offset)
}

// SweepMemory drops sessions idle beyond the memory retention horizon.
func (m *TaskManager) SweepMemory(ctx context.Context) (int, error) {
	pruner, ok := m.deps.Memory.(memory.Pruner)
	if !ok || !m.memoryPolicy.HasRules() {
		return 0, nil
	}
	removed, err := pruner.PruneIdle(ctx, m.memoryPolicy, m.scheduler.Now())
	if err != nil {
		return 0, err
	}
	if len(removed) > 0 {
		m.logger.Info("Pruned memory for %d idle sessions", len(removed))
	}
	return len(removed), nil
}

// RunMaintenance sweeps stale workspaces once and idle session memory every
// interval until ctx ends. Failures are logged and never fatal.
func (m *TaskManager) RunMaintenance(ctx context.Context, interval time.Duration) error {
	if removed, err := m.deps.Workspaces.SweepStale(); err != nil {
		m.logger.Warn("Workspace sweep failed: %v", err)
	} else if removed > 0 {
		m.logger.Info("Removed %d stale workspaces", removed)
	}
	if _, err := m.SweepMemory(ctx); err != nil {
		m.logger.Warn("Memory sweep failed: %v", err)
	}
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.SweepMemory(ctx); err != nil {
				m.logger.Warn("Memory sweep failed: %v", err)
			}
		}
	}
}

// Shutdown cancels every running task and waits for them to report.
func (m *TaskManager) Shutdown(ctx context.Context) error {
	m.stopAll()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}

	m.mu.Lock()
	for taskID, timer := range m.purgeTimer {
		timer.Stop()
		delete(m.purgeTimer, taskID)
	}
	m.mu.Unlock()
	m.deps.Workspaces.Close()
	return nil
}

func (m *TaskManager) forgetCancel(taskID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[taskID]
	delete(m.cancels, taskID)
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// schedulePurge removes the finished task record and its event history after
// the retention delay.
func (m *TaskManager) schedulePurge(taskID string) {
	if m.retention <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeTimer[taskID] = m.scheduler.AfterFunc(m.retention, func() {
		m.mu.Lock()
		delete(m.purgeTimer, taskID)
		m.mu.Unlock()
		if err := m.deps.Store.Delete(context.Background(), taskID); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Warn("Failed to purge task %s: %v", taskID, err)
		}
		m.deps.Events.Forget(taskID)
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTooManyConcurrentTasks):
		return "too_many_concurrent_tasks"
	default:
		return "other"
	}
}
