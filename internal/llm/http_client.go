package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentloop/internal/agent/ports"
	sharederrors "agentloop/internal/shared/errors"
	"agentloop/internal/shared/logging"
)

// Wire shapes understood by the HTTP client.
const (
	ModeGetQuery = "get_query"
	ModePostJSON = "post_json"
	ModeOpenAI   = "openai"
)

const maxResponseBytes = 4 << 20

// HTTPConfig configures a reasoning endpoint.
type HTTPConfig struct {
	BaseURL string
	Mode    string
	Model   string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

// httpClient calls a single completion endpoint and extracts the reply text.
type httpClient struct {
	baseURL    string
	mode       string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

var _ ports.ReasoningClient = (*httpClient)(nil)

// NewHTTPClient creates a client for a generic completion endpoint.
func NewHTTPClient(cfg HTTPConfig) (ports.ReasoningClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("reasoning base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse reasoning base url: %w", err)
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "":
		mode = ModePostJSON
	case ModeGetQuery, ModePostJSON, ModeOpenAI:
	default:
		return nil, fmt.Errorf("unsupported reasoning mode %q", cfg.Mode)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &httpClient{
		baseURL:    cfg.BaseURL,
		mode:       mode,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: client,
		logger:     logging.NewComponentLogger("reasoning-http"),
	}, nil
}

func (c *httpClient) Model() string {
	if c.model == "" {
		return c.mode
	}
	return c.model
}

func (c *httpClient) Complete(ctx context.Context, prompt string) (string, error) {
	req, err := c.buildRequest(ctx, prompt)
	if err != nil {
		return "", sharederrors.NewPermanentError(err, "build reasoning request")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", sharederrors.NewTransientError(err, "read reasoning response")
	}
	c.logger.Debug("Reasoning call %s returned %d (%d bytes) in %v", c.mode, resp.StatusCode, len(body), time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &sharederrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return ExtractText(body), nil
}

func (c *httpClient) buildRequest(ctx context.Context, prompt string) (*http.Request, error) {
	switch c.mode {
	case ModeGetQuery:
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("prompt", prompt)
		u.RawQuery = q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		c.setAuth(req)
		return req, nil

	case ModeOpenAI:
		payload := map[string]any{
			"model": c.model,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}
		return c.jsonRequest(ctx, payload)

	default:
		payload := map[string]any{"prompt": prompt}
		if c.model != "" {
			payload["model"] = c.model
		}
		return c.jsonRequest(ctx, payload)
	}
}

func (c *httpClient) jsonRequest(ctx context.Context, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	return req, nil
}

func (c *httpClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// ExtractText pulls the reply out of the response shapes completion services
// commonly use, falling back to the raw body.
func ExtractText(body []byte) string {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		if text, ok := textFromObject(v); ok {
			return text
		}
		return string(body)
	default:
		return string(body)
	}
}

func textFromObject(obj map[string]any) (string, bool) {
	switch result := obj["result"].(type) {
	case string:
		return result, true
	case map[string]any:
		for _, key := range []string{"response", "text", "content"} {
			if s, ok := result[key].(string); ok {
				return s, true
			}
		}
		data, err := json.Marshal(result)
		if err == nil {
			return string(data), true
		}
	}
	for _, key := range []string{"response", "text", "content", "output"} {
		if s, ok := obj[key].(string); ok {
			return s, true
		}
	}
	if choices, ok := obj["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if s, ok := message["content"].(string); ok {
					return s, true
				}
			}
			if s, ok := choice["text"].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
