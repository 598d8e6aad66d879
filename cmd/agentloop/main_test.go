package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/llm"
	"agentloop/internal/server/bootstrap"
	"agentloop/internal/shared/config"
	tokenutil "agentloop/internal/shared/token"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentloop dev")
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reasoning:
  api_key: sk-very-secret
agent:
  max_steps: 7
`), 0o644))

	out, err := execute(t, "config", "dump", "--config", path, "--sources")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "max_steps: 7")
	assert.Contains(t, out, "# agent.max_steps: file")
}

func TestConfigCommandRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  max_steps: -1\n"), 0o644))

	_, err := execute(t, "config", "dump", "--config", path)
	require.Error(t, err)
}

func TestRunTaskPrintsEventsUntilFinalAnswer(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Root = filepath.Join(t.TempDir(), "ws")
	cfg.Memory.Dir = filepath.Join(t.TempDir(), "mem")
	reasoning := llm.NewScriptedClient(
		`{"thought":"look around","action":{"name":"terminal","args":{"command":"echo hello"}}}`,
		`{"thought":"done","action":{"name":"finish","args":{"answer":"said hello"}}}`,
	)
	container, err := bootstrap.BuildContainer(cfg,
		bootstrap.WithReasoningClient(reasoning),
		bootstrap.WithTokenCounter(tokenutil.Estimator),
	)
	require.NoError(t, err)
	defer func() { _ = container.Shutdown(context.Background()) }()

	var out bytes.Buffer
	err = runTask(context.Background(), container, "say hello", "", newEventPrinter(&out, true, false))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[step 1] look around")
	assert.Contains(t, text, "→ terminal")
	assert.Contains(t, text, "hello")
	assert.Contains(t, text, "✓ said hello")
	assert.Contains(t, text, "2 steps, 0 retries")
}

func TestRunTaskReturnsExitCodeOnFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Root = filepath.Join(t.TempDir(), "ws")
	cfg.Memory.Dir = filepath.Join(t.TempDir(), "mem")
	cfg.Agent.MaxSteps = 1
	reasoning := llm.NewScriptedClient(`{"thought":"loop","action":{"name":"terminal","args":{"command":"echo again"}}}`)
	container, err := bootstrap.BuildContainer(cfg,
		bootstrap.WithReasoningClient(reasoning),
		bootstrap.WithTokenCounter(tokenutil.Estimator),
	)
	require.NoError(t, err)
	defer func() { _ = container.Shutdown(context.Background()) }()

	var out bytes.Buffer
	err = runTask(context.Background(), container, "loop forever", "", newEventPrinter(&out, true, false))
	var exitErr *exitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.code)
	assert.Contains(t, out.String(), "✗")
}

func TestPrinterSkipsStatusUnlessVerbose(t *testing.T) {
	var out bytes.Buffer
	quiet := newEventPrinter(&out, true, false)
	quiet.Print(agentports.Event{Type: agentports.EventStatus, Content: "running"})
	assert.Empty(t, out.String())

	verbose := newEventPrinter(&out, true, true)
	verbose.Print(agentports.Event{Type: agentports.EventStatus, Content: "running"})
	verbose.Print(agentports.Event{Type: agentports.EventSelfCorrection, ToolName: "terminal", RetryAttempt: 1, MaxRetries: 3})
	verbose.Print(agentports.Event{Type: agentports.EventToolOutput, Content: "line1\nline2", IsError: true})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "· running", lines[0])
	assert.Equal(t, "↻ self-correcting terminal (attempt 1/3)", lines[1])
	assert.Equal(t, "  ✗ line1", lines[2])
	assert.Equal(t, "  line2", lines[3])
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab…", clip("abcd", 2))
}
