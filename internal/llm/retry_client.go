package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentloop/internal/agent/ports"
	sharederrors "agentloop/internal/shared/errors"
	"agentloop/internal/shared/logging"
)

// retryClient wraps a reasoning client with retry logic and a circuit breaker.
type retryClient struct {
	underlying     ports.ReasoningClient
	retryConfig    sharederrors.RetryConfig
	circuitBreaker *sharederrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient retries transient failures with backoff. A nil breaker
// disables circuit breaking.
func NewRetryClient(client ports.ReasoningClient, retryConfig sharederrors.RetryConfig, circuitBreaker *sharederrors.CircuitBreaker) ports.ReasoningClient {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("reasoning-retry"),
	}
}

func (c *retryClient) Complete(ctx context.Context, prompt string) (string, error) {
	started := time.Now()
	text, err := sharederrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (string, error) {
		if c.circuitBreaker == nil {
			return c.call(ctx, prompt)
		}
		return sharederrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (string, error) {
			return c.call(ctx, prompt)
		})
	}, c.logger)
	if err != nil {
		c.logger.Warn("Reasoning call failed after retries (took %v): %v", time.Since(started), err)
		return "", err
	}
	return text, nil
}

func (c *retryClient) call(ctx context.Context, prompt string) (string, error) {
	text, err := c.underlying.Complete(ctx, prompt)
	if err != nil {
		return "", classify(err)
	}
	return text, nil
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// classify marks unclassified failures transient unless they are plainly
// caller errors, so a flaky endpoint gets its retry budget.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if sharederrors.IsPermanent(err) || sharederrors.IsTransient(err) || sharederrors.IsDegraded(err) {
		return err
	}
	return sharederrors.NewTransientError(err, fmt.Sprintf("reasoning call failed: %v", err))
}
