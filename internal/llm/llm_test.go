package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/ports"
	"agentloop/internal/shared/config"
	sharederrors "agentloop/internal/shared/errors"
)

func TestExtractText(t *testing.T) {
	cases := map[string]string{
		`{"result": {"response": "a"}}`:                "a",
		`{"result": {"text": "b"}}`:                    "b",
		`{"result": "c"}`:                              "c",
		`{"response": "d"}`:                            "d",
		`{"text": "e"}`:                                "e",
		`{"choices": [{"message": {"content": "f"}}]}`: "f",
		`"g"`:               "g",
		`plain text reply`:  "plain text reply",
		`{"unexpected": 1}`: `{"unexpected": 1}`,
	}
	for body, want := range cases {
		assert.Equal(t, want, ExtractText([]byte(body)), body)
	}
}

func TestHTTPClientModes(t *testing.T) {
	var gotMethod, gotPrompt, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		switch r.Method {
		case http.MethodGet:
			gotPrompt = r.URL.Query().Get("prompt")
		default:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if p, ok := body["prompt"].(string); ok {
				gotPrompt = p
			} else if msgs, ok := body["messages"].([]any); ok {
				gotPrompt = msgs[0].(map[string]any)["content"].(string)
			}
		}
		_, _ = w.Write([]byte(`{"result": {"response": "ok"}}`))
	}))
	defer srv.Close()

	for _, mode := range []string{ModeGetQuery, ModePostJSON, ModeOpenAI} {
		t.Run(mode, func(t *testing.T) {
			client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Mode: mode, APIKey: "k"})
			require.NoError(t, err)

			text, err := client.Complete(context.Background(), "hello & world")
			require.NoError(t, err)
			assert.Equal(t, "ok", text)
			assert.Equal(t, "hello & world", gotPrompt)
			assert.Equal(t, "Bearer k", gotAuth)
			if mode == ModeGetQuery {
				assert.Equal(t, http.MethodGet, gotMethod)
			} else {
				assert.Equal(t, http.MethodPost, gotMethod)
			}
		})
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), "x")

	var statusErr *sharederrors.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, sharederrors.IsTransient(err))
}

func TestNewHTTPClientValidates(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{})
	assert.Error(t, err)
	_, err = NewHTTPClient(HTTPConfig{BaseURL: "http://x", Mode: "carrier_pigeon"})
	assert.Error(t, err)
}

func fastRetry(retries int) sharederrors.RetryConfig {
	return sharederrors.RetryConfig{MaxAttempts: retries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryClientRecoversFromFlakyUpstream(t *testing.T) {
	scripted := NewScriptedClient().
		Then(ScriptedResponse{Err: errors.New("connection reset")}).
		Then(ScriptedResponse{Text: "recovered"})

	client := NewRetryClient(scripted, fastRetry(2), nil)
	text, err := client.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, scripted.Calls())
}

func TestRetryClientStopsOnPermanentError(t *testing.T) {
	scripted := NewScriptedClient().
		Then(ScriptedResponse{Err: &sharederrors.HTTPStatusError{StatusCode: http.StatusBadRequest}})

	client := NewRetryClient(scripted, fastRetry(3), nil)
	_, err := client.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, 1, scripted.Calls())
}

func TestRetryClientOpensBreaker(t *testing.T) {
	scripted := NewScriptedClient().Then(ScriptedResponse{Err: errors.New("down")})
	breaker := sharederrors.NewCircuitBreaker("test", sharederrors.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour})

	client := NewRetryClient(scripted, fastRetry(0), breaker)
	for i := 0; i < 2; i++ {
		_, err := client.Complete(context.Background(), "p")
		require.Error(t, err)
	}
	_, err := client.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, sharederrors.IsDegraded(err))
	assert.Equal(t, 2, scripted.Calls())
}

func TestRateLimitedClientHonoursContext(t *testing.T) {
	scripted := NewScriptedClient("a", "b")
	client := WrapWithRateLimit(scripted, 0.001, 1)

	_, err := client.Complete(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, 1, scripted.Calls())
}

func TestScriptedClientRepeatsLastResponse(t *testing.T) {
	client := NewScriptedClient("one", "two")
	for _, want := range []string{"one", "two", "two"} {
		got, err := client.Complete(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Len(t, client.Prompts(), 3)
}

func TestFactoryMockProvider(t *testing.T) {
	client, err := New(config.ReasoningConfig{Provider: "mock"})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "System\nTask: say hi\n")
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, `"name":"finish"`), text)
	assert.Contains(t, text, "Mock answer for: say hi")

	_, err = New(config.ReasoningConfig{Provider: "telepathy"})
	assert.Error(t, err)
}

func TestFactoryBuildsHTTPStack(t *testing.T) {
	client, err := New(config.ReasoningConfig{Provider: "http", BaseURL: "http://localhost:1/complete", MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, ModePostJSON, client.Model())
	var _ ports.ReasoningClient = client
}
