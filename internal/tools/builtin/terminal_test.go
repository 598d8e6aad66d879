package builtin

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/ports"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func runTerminal(t *testing.T, timeout time.Duration, workspace, command string) ports.ToolResult {
	t.Helper()
	return NewTerminal(timeout).Execute(context.Background(), ports.ToolCall{
		Workspace: workspace,
		Args:      ports.TerminalArgs{Command: command},
	})
}

func TestTerminalRunsInWorkspace(t *testing.T) {
	requireBash(t)
	ws := t.TempDir()

	result := runTerminal(t, time.Second*5, ws, "echo hi > out.txt && cat out.txt")
	require.False(t, result.IsError, result.Output)
	assert.Equal(t, "STDOUT:\nhi\n", result.Output)

	_, err := os.Stat(filepath.Join(ws, "out.txt"))
	require.NoError(t, err)
}

func TestTerminalNoOutput(t *testing.T) {
	requireBash(t)
	result := runTerminal(t, time.Second*5, t.TempDir(), "true")
	assert.False(t, result.IsError)
	assert.Equal(t, "(command executed successfully, no output)", result.Output)
}

func TestTerminalNonZeroExit(t *testing.T) {
	requireBash(t)
	result := runTerminal(t, time.Second*5, t.TempDir(), "echo boom >&2; exit 3")
	assert.True(t, result.IsError)
	assert.Equal(t, "STDERR:\nboom\n\n(exit code: 3)", result.Output)
	assert.Equal(t, "boom", result.ErrorSnippet)
}

func TestTerminalTimeout(t *testing.T) {
	requireBash(t)
	result := runTerminal(t, time.Second, t.TempDir(), "sleep 5")
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(result.Output, "Error: Command timed out after 1 seconds."), result.Output)
}

func TestTerminalMetadataIsDangerous(t *testing.T) {
	meta := NewTerminal(0).Metadata()
	assert.Equal(t, ports.ToolTerminal, meta.Name)
	assert.True(t, meta.Dangerous)
}
