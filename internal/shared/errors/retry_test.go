package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithResultRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("flaky"), "")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestRetryWithResultStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad input")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryWithResultExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		calls++
		return 0, &HTTPStatusError{StatusCode: 503}
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "max retries exceeded")
	require.Equal(t, 3, calls)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
}

func TestRetryWithResultHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryWithResult(ctx, fastRetry(3), func(context.Context) (int, error) {
		t.Fatal("fn must not run on a cancelled context")
		return 0, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	require.Equal(t, time.Second, calculateBackoff(0, cfg))
	require.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	require.Equal(t, 3*time.Second, calculateBackoff(5, cfg))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker("reasoning", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Second,
		Now:              func() time.Time { return now },
	})
	fail := func(context.Context) (int, error) { return 0, errors.New("down") }
	succeed := func(context.Context) (int, error) { return 1, nil }

	_, _ = ExecuteFunc(cb, context.Background(), fail)
	_, _ = ExecuteFunc(cb, context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	_, err := ExecuteFunc(cb, context.Background(), succeed)
	require.True(t, IsDegraded(err))

	now = now.Add(11 * time.Second)
	got, err := ExecuteFunc(cb, context.Background(), succeed)
	require.NoError(t, err)
	require.Equal(t, 1, got)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("reasoning", CircuitBreakerConfig{FailureThreshold: 1})
	_, _ = ExecuteFunc(cb, context.Background(), func(context.Context) (int, error) {
		return 0, context.Canceled
	})
	require.Equal(t, StateClosed, cb.State())
}
