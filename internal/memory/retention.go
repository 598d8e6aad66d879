package memory

import (
	"context"
	"time"
)

// RetentionPolicy defines how long an untouched session's memory is kept.
type RetentionPolicy struct {
	IdleHorizon time.Duration
}

func (p RetentionPolicy) HasRules() bool {
	return p.IdleHorizon > 0
}

// IsIdle reports whether a session last written at lastActivity has been idle
// beyond the horizon.
func (p RetentionPolicy) IsIdle(lastActivity, now time.Time) bool {
	if !p.HasRules() || lastActivity.IsZero() {
		return false
	}
	return now.Sub(lastActivity) > p.IdleHorizon
}

// Pruner is implemented by stores that can drop idle sessions.
type Pruner interface {
	PruneIdle(ctx context.Context, policy RetentionPolicy, now time.Time) ([]string, error)
}
