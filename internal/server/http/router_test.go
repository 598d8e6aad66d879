package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/domain"
	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/observability"
	"agentloop/internal/server/app"
	"agentloop/internal/server/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubService struct {
	mu        sync.Mutex
	tasks     map[string]*ports.Task
	submitErr error
	events    *app.EventBroadcaster
	listArgs  []any
}

func newStubService() *stubService {
	return &stubService{tasks: map[string]*ports.Task{}, events: app.NewEventBroadcaster()}
}

func (s *stubService) Submit(_ context.Context, prompt, sessionID string) (*ports.Task, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, app.ValidationError("prompt is required")
	}
	if sessionID == "" {
		sessionID = "session-generated"
	}
	task := &ports.Task{ID: "task-1", SessionID: sessionID, Prompt: prompt, Status: domain.StatusQueued}
	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	s.events.Open(task.ID)
	return task.Clone(), nil
}

func (s *stubService) Get(_ context.Context, taskID string) (*ports.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, app.NotFoundError("task " + taskID)
	}
	return task.Clone(), nil
}

func (s *stubService) List(_ context.Context, sessionID string, limit, offset int) ([]*ports.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listArgs = []any{sessionID, limit, offset}
	var out []*ports.Task
	for _, task := range s.tasks {
		if sessionID == "" || task.SessionID == sessionID {
			out = append(out, task.Clone())
		}
	}
	return out, len(out), nil
}

func (s *stubService) Cancel(_ context.Context, taskID string) (*ports.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, app.NotFoundError("task " + taskID)
	}
	if task.Status.IsTerminal() {
		return nil, app.ConflictError("task already finished")
	}
	task.Status = domain.StatusFailed
	task.Error = "cancelled by user"
	return task.Clone(), nil
}

func (s *stubService) Subscribe(ctx context.Context, taskID string) (*app.Subscription, error) {
	if _, err := s.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.events.Subscribe(taskID), nil
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTaskReturnsCreated(t *testing.T) {
	service := newStubService()
	router := NewRouter(service, RouterConfig{})

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", `{"prompt":"write a file","session_id":"s1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "queued", resp.Status)
}

func TestCreateTaskMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		body   string
		status int
		code   string
	}{
		{name: "validation", body: `{"prompt":"  "}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "malformed", body: `{"prompt":`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "rate limited", err: app.ErrRateLimited, body: `{"prompt":"x"}`, status: http.StatusTooManyRequests, code: "rate_limited"},
		{name: "concurrency", err: app.ErrTooManyConcurrentTasks, body: `{"prompt":"x"}`, status: http.StatusServiceUnavailable, code: "too_many_concurrent_tasks"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := newStubService()
			service.submitErr = tc.err
			router := NewRouter(service, RouterConfig{})

			rec := doJSON(t, router, http.MethodPost, "/api/tasks", tc.body)
			require.Equal(t, tc.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error)
		})
	}
}

func TestCreateTaskRejectsNonJSON(t *testing.T) {
	router := NewRouter(newStubService(), RouterConfig{})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("prompt=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGetListAndCancel(t *testing.T) {
	service := newStubService()
	router := NewRouter(service, RouterConfig{})
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/tasks", `{"prompt":"x","session_id":"s1"}`).Code)

	rec := doJSON(t, router, http.MethodGet, "/api/tasks/task-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var task ports.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "task-1", task.ID)

	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/api/tasks/missing", "").Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks?session_id=s1&limit=10&offset=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, []any{"s1", 10, 0}, service.listArgs)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/api/tasks?limit=-1", "").Code)

	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/tasks/task-1/cancel", "").Code)
	assert.Equal(t, http.StatusConflict, doJSON(t, router, http.MethodPost, "/api/tasks/task-1/cancel", "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodPost, "/api/tasks/missing/cancel", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.MustNewMetrics(reg)
	metrics.TaskSubmitted()

	router := NewRouter(newStubService(), RouterConfig{Gatherer: reg, Version: "test"})

	rec := doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = doJSON(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentloop_tasks_submitted_total")
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	router := NewRouter(newStubService(), RouterConfig{})
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/metrics", "").Code)
}

func TestSSEStreamsEventsUntilTerminal(t *testing.T) {
	service := newStubService()
	server := httptest.NewServer(NewRouter(service, RouterConfig{HeartbeatInterval: 20 * time.Millisecond}))
	defer server.Close()

	_, err := service.Submit(context.Background(), "x", "s1")
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/api/tasks/task-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		time.Sleep(50 * time.Millisecond)
		service.events.OnEvent(agentports.Event{Type: agentports.EventThought, TaskID: "task-1", Content: "thinking", Step: 1})
		service.events.OnEvent(agentports.Event{Type: agentports.EventFinalAnswer, TaskID: "task-1", Content: "done", StepsTaken: 1})
	}()

	var eventNames []string
	var heartbeat bool
	var finalData string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ": heartbeat"):
			heartbeat = true
		case strings.HasPrefix(line, "event: "):
			eventNames = append(eventNames, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			finalData = strings.TrimPrefix(line, "data: ")
		}
	}

	assert.Equal(t, []string{"thought", "final_answer"}, eventNames)
	assert.True(t, heartbeat, "expected at least one heartbeat comment")
	assert.Contains(t, finalData, `"steps_taken":1`)
	assert.Contains(t, finalData, `"retries":0`)
}

func TestSSEUnknownTask(t *testing.T) {
	router := NewRouter(newStubService(), RouterConfig{})
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/api/tasks/missing/events", "").Code)
}

func TestWebSocketStreamsEventsUntilTerminal(t *testing.T) {
	service := newStubService()
	server := httptest.NewServer(NewRouter(service, RouterConfig{}))
	defer server.Close()

	_, err := service.Submit(context.Background(), "x", "s1")
	require.NoError(t, err)
	service.events.OnEvent(agentports.Event{Type: agentports.EventStatus, TaskID: "task-1", Content: "running"})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/tasks/task-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	service.events.OnEvent(agentports.Event{Type: agentports.EventToolOutput, TaskID: "task-1", ToolName: "terminal", Content: "ok"})
	service.events.OnEvent(agentports.Event{Type: agentports.EventError, TaskID: "task-1", Content: "failed"})

	var received []agentports.EventType
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var raw map[string]any
		if err := conn.ReadJSON(&raw); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		received = append(received, agentports.EventType(raw["type"].(string)))
		if raw["type"] == "tool_output" {
			assert.Equal(t, false, raw["has_error"])
		}
	}
	assert.Equal(t, []agentports.EventType{agentports.EventStatus, agentports.EventToolOutput, agentports.EventError}, received)
}
