package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentloop/internal/shared/logging"
)

// CircuitState is the position of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s CircuitState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a CircuitBreaker. Zero values take defaults.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit (5)
	SuccessThreshold int           // half-open successes that close it (2)
	Timeout          time.Duration // time open before a probe is allowed (30s)
	Now              func() time.Time
}

// CircuitBreaker stops calling an upstream that keeps failing and probes it
// again after a cool-down.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logging.NewComponentLogger("CircuitBreaker"),
	}
}

// ExecuteFunc runs fn unless the circuit is open, in which case it returns a
// DegradedError without calling fn.
func ExecuteFunc[T any](cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.admit(); err != nil {
		var zero T
		return zero, err
	}
	result, err := fn(ctx)
	cb.record(err)
	return result, err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	elapsed := cb.config.Now().Sub(cb.openedAt)
	if elapsed >= cb.config.Timeout {
		cb.moveTo(StateHalfOpen)
		return nil
	}
	return NewDegradedError(
		fmt.Errorf("circuit breaker open for %s", cb.name),
		fmt.Sprintf("Service '%s' is temporarily unavailable after repeated failures; retry in %v.",
			cb.name, (cb.config.Timeout-elapsed).Round(time.Second)),
	)
}

func (cb *CircuitBreaker) record(err error) {
	// Cancellation says nothing about upstream health.
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.moveTo(StateClosed)
			}
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.moveTo(StateOpen)
		}
	case StateHalfOpen:
		cb.moveTo(StateOpen)
	}
}

// moveTo must be called with mu held.
func (cb *CircuitBreaker) moveTo(state CircuitState) {
	from := cb.state
	cb.state = state
	cb.successes = 0
	switch state {
	case StateOpen:
		cb.openedAt = cb.config.Now()
		cb.logger.Warn("[%s] circuit %s -> open after %d failures", cb.name, from, cb.failures)
	case StateClosed:
		cb.failures = 0
		cb.logger.Info("[%s] circuit %s -> closed", cb.name, from)
	case StateHalfOpen:
		cb.logger.Info("[%s] circuit %s -> half-open, probing", cb.name, from)
	}
}

// State returns the current position of the breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
