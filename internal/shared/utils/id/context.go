package id

import "context"

type contextKey string

const (
	sessionKey contextKey = "agentloop_session_id"
	taskKey    contextKey = "agentloop_task_id"
)

// IDs captures the identifiers propagated across task execution boundaries.
type IDs struct {
	SessionID string
	TaskID    string
}

// WithSessionID stores the provided session identifier on the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// WithTaskID stores the current task identifier on the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, taskID)
}

// SessionIDFromContext extracts the session identifier, if any.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionKey).(string); ok {
		return v
	}
	return ""
}

// TaskIDFromContext extracts the task identifier, if any.
func TaskIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(taskKey).(string); ok {
		return v
	}
	return ""
}

// IDsFromContext returns every identifier stored on the context.
func IDsFromContext(ctx context.Context) IDs {
	return IDs{
		SessionID: SessionIDFromContext(ctx),
		TaskID:    TaskIDFromContext(ctx),
	}
}
