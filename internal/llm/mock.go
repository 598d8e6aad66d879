package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"agentloop/internal/agent/ports"
)

// ScriptedClient replays canned responses in order. Once the script runs out
// it keeps returning the last entry. Useful for tests and the mock provider.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	prompts   []string
	next      int
}

// ScriptedResponse is one canned reply or failure.
type ScriptedResponse struct {
	Text string
	Err  error
}

var _ ports.ReasoningClient = (*ScriptedClient)(nil)

// NewScriptedClient creates a client that answers with the given texts.
func NewScriptedClient(texts ...string) *ScriptedClient {
	responses := make([]ScriptedResponse, 0, len(texts))
	for _, text := range texts {
		responses = append(responses, ScriptedResponse{Text: text})
	}
	return &ScriptedClient{responses: responses}
}

// Then appends a reply and returns the client for chaining.
func (c *ScriptedClient) Then(response ScriptedResponse) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response)
	return c
}

func (c *ScriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if len(c.responses) == 0 {
		return "", fmt.Errorf("scripted client has no responses")
	}
	idx := c.next
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	} else {
		c.next++
	}
	r := c.responses[idx]
	return r.Text, r.Err
}

func (c *ScriptedClient) Model() string { return "scripted" }

// Prompts returns every prompt received so far.
func (c *ScriptedClient) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

// Calls reports how many completions were requested.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

// echoClient finishes every task immediately by echoing the task line back.
// It backs the "mock" provider for local runs without a reasoning service.
type echoClient struct{}

func (echoClient) Model() string { return "mock" }

func (echoClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	task := ""
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "Task: "); ok {
			task = strings.TrimSpace(rest)
			break
		}
	}
	reply, err := json.Marshal(map[string]any{
		"thought": "mock provider answers without tools",
		"action": map[string]any{
			"name": ports.ToolFinish,
			"args": map[string]any{"answer": "Mock answer for: " + task},
		},
	})
	if err != nil {
		return "", err
	}
	return string(reply), nil
}
