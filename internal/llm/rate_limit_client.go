package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"agentloop/internal/agent/ports"
)

// rateLimitedClient paces outbound reasoning calls process-wide so concurrent
// tasks do not burst the upstream service.
type rateLimitedClient struct {
	base    ports.ReasoningClient
	limiter *rate.Limiter
}

// WrapWithRateLimit waits for a token before each call. A non-positive limit
// returns the client unchanged; a burst below 1 is coerced to 1.
func WrapWithRateLimit(client ports.ReasoningClient, limit rate.Limit, burst int) ports.ReasoningClient {
	if limit <= 0 {
		return client
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedClient{base: client, limiter: rate.NewLimiter(limit, burst)}
}

func (c *rateLimitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("reasoning rate limiter: %w", err)
	}
	return c.base.Complete(ctx, prompt)
}

func (c *rateLimitedClient) Model() string {
	return c.base.Model()
}
