package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"agentloop/internal/shared/logging"
)

// RetryConfig bounds a retry loop. MaxAttempts counts retries after the
// first call.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // 0.25 spreads each delay by ±25%
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// RetryWithResult runs fn until it succeeds, fails permanently or the retry
// budget is spent.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	return RetryWithResultAndLog(ctx, config, fn, nil)
}

// RetryWithResultAndLog is RetryWithResult with attempt logging. Only
// transient errors are retried; the last one is wrapped once the budget runs out.
func RetryWithResultAndLog[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, error) {
	logger = logging.OrNop(logger)
	var zero T
	total := config.MaxAttempts + 1

	var lastErr error
	for attempt := 0; attempt < total; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}
		if attempt > 0 {
			wait := calculateBackoff(attempt-1, config)
			logger.Debug("Attempt %d/%d in %v after: %v", attempt+1, total, wait, lastErr)
			if err := sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("context cancelled during retry: %w", err)
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Succeeded on attempt %d/%d", attempt+1, total)
			}
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
	}

	logger.Warn("Giving up after %d attempts: %v", total, lastErr)
	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calculateBackoff returns BaseDelay doubled per retry, jittered and capped
// at MaxDelay.
func calculateBackoff(retry int, config RetryConfig) time.Duration {
	delay := config.BaseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if config.MaxDelay > 0 && delay >= config.MaxDelay {
			delay = config.MaxDelay
			break
		}
	}
	if config.JitterFactor > 0 {
		spread := float64(delay) * config.JitterFactor
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
		if delay < 0 {
			delay = config.BaseDelay
		}
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
