package app

import (
	"errors"
	"fmt"
)

// Sentinels returned by the task layer. The HTTP gateway maps them to status
// codes with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrRateLimited: more submissions than allowed in the trailing window.
	ErrRateLimited = errors.New("RateLimited")
	// ErrTooManyConcurrentTasks: the active-task ceiling is reached.
	ErrTooManyConcurrentTasks = errors.New("TooManyConcurrentTasks")
)

func NotFoundError(msg string) error   { return fmt.Errorf("%s: %w", msg, ErrNotFound) }
func ValidationError(msg string) error { return fmt.Errorf("%s: %w", msg, ErrValidation) }
func ConflictError(msg string) error   { return fmt.Errorf("%s: %w", msg, ErrConflict) }
