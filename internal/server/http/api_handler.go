package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"agentloop/internal/server/app"
	"agentloop/internal/server/ports"
	"agentloop/internal/shared/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// CreateTaskResponse is returned on admission.
type CreateTaskResponse struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// TaskListResponse wraps a page of tasks.
type TaskListResponse struct {
	Tasks  []*ports.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// APIHandler serves the task REST endpoints.
type APIHandler struct {
	service TaskService
	logger  logging.Logger
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(service TaskService, logger logging.Logger) *APIHandler {
	return &APIHandler{service: service, logger: logging.OrNop(logger)}
}

// CreateTask handles POST /api/tasks.
func (h *APIHandler) CreateTask(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, app.ValidationError("invalid request body"))
		return
	}
	task, err := h.service.Submit(c.Request.Context(), req.Prompt, req.SessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateTaskResponse{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Status:    string(task.Status),
	})
}

// GetTask handles GET /api/tasks/:id.
func (h *APIHandler) GetTask(c *gin.Context) {
	task, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListTasks handles GET /api/tasks.
func (h *APIHandler) ListTasks(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	tasks, total, err := h.service.List(c.Request.Context(), c.Query("session_id"), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*ports.Task{}
	}
	c.JSON(http.StatusOK, TaskListResponse{Tasks: tasks, Total: total, Limit: limit, Offset: offset})
}

// CancelTask handles POST /api/tasks/:id/cancel.
func (h *APIHandler) CancelTask(c *gin.Context) {
	task, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, app.ValidationError(key + " must be a non-negative integer")
	}
	return value, nil
}

// writeError maps application errors to HTTP status codes.
func (h *APIHandler) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: err.Error()})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, app.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, app.ErrTooManyConcurrentTasks):
		return http.StatusServiceUnavailable, "too_many_concurrent_tasks"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
