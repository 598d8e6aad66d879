package ports

import "context"

// ReasoningClient is the external completion service. One blocking call per
// reasoning step; the returned text is untrusted and parsed defensively.
type ReasoningClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// ReasoningClientFunc adapts a function to ReasoningClient.
type ReasoningClientFunc func(ctx context.Context, prompt string) (string, error)

func (f ReasoningClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (f ReasoningClientFunc) Model() string {
	return "func"
}
