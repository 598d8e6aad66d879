package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

const (
	taskPrefix    = "task-"
	sessionPrefix = "session-"
)

// NewTaskID returns a random task identifier. The body is a v4 UUID so any
// prefix of it is as unique as the whole, which keeps truncated workspace
// names from colliding.
func NewTaskID() string {
	return taskPrefix + uuid.NewString()
}

// NewSessionID returns a time-sortable session identifier.
func NewSessionID() string {
	return sessionPrefix + ksuid.New().String()
}

// NewKSUID exposes raw KSUID generation for callers that need unprefixed,
// time-ordered identifiers.
func NewKSUID() string {
	return ksuid.New().String()
}

// ShortTaskID returns the first n hex characters of the task's UUID body,
// ignoring the prefix and hyphens.
func ShortTaskID(taskID string, n int) string {
	body := strings.TrimPrefix(taskID, taskPrefix)
	body = strings.ReplaceAll(body, "-", "")
	if n <= 0 || n >= len(body) {
		return body
	}
	return body[:n]
}

// ValidSessionID reports whether a caller-supplied session identifier is safe
// to use as a file name.
func ValidSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	if len(sessionID) > 128 {
		return fmt.Errorf("session id longer than 128 characters")
	}
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("session id contains invalid character %q", r)
		}
	}
	if strings.Trim(sessionID, ".") == "" {
		return fmt.Errorf("session id %q is reserved", sessionID)
	}
	return nil
}
