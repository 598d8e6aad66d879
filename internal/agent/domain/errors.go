package domain

import "errors"

var (
	// ErrReasoningUnavailable means the reasoning service failed after its retry budget.
	ErrReasoningUnavailable = errors.New("ReasoningUnavailable")
	// ErrStepLimitExceeded marks a task that used every step without finishing.
	ErrStepLimitExceeded = errors.New("StepLimitExceeded")
	// ErrCancelled marks a task stopped by its owner.
	ErrCancelled = errors.New("task cancelled")
)
