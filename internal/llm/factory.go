// Package llm builds the reasoning client stack: an HTTP transport wrapped
// with retry, circuit breaking and outbound rate limiting.
package llm

import (
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"agentloop/internal/agent/ports"
	"agentloop/internal/shared/config"
	sharederrors "agentloop/internal/shared/errors"
)

// New creates the configured reasoning client.
func New(cfg config.ReasoningConfig) (ports.ReasoningClient, error) {
	var base ports.ReasoningClient
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "mock":
		return echoClient{}, nil
	case "openai":
		client, err := NewHTTPClient(HTTPConfig{
			BaseURL: cfg.BaseURL,
			Mode:    ModeOpenAI,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		base = client
	case "", "http":
		client, err := NewHTTPClient(HTTPConfig{
			BaseURL: cfg.BaseURL,
			Mode:    cfg.Mode,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		base = client
	default:
		return nil, fmt.Errorf("unsupported reasoning provider %q", cfg.Provider)
	}

	retries := cfg.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	retryConfig := sharederrors.DefaultRetryConfig()
	retryConfig.MaxAttempts = retries
	if cfg.RetryBaseDelay > 0 {
		retryConfig.BaseDelay = cfg.RetryBaseDelay
	}
	breaker := sharederrors.NewCircuitBreaker("reasoning", sharederrors.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		Timeout:          cfg.BreakerTimeout,
	})

	client := WrapWithRateLimit(base, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	return NewRetryClient(client, retryConfig, breaker), nil
}
