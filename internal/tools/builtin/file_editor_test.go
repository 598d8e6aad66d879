package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/ports"
)

func runEditor(t *testing.T, workspace string, args ports.FileEditorArgs) ports.ToolResult {
	t.Helper()
	return NewFileEditor().Execute(context.Background(), ports.ToolCall{Workspace: workspace, Args: args})
}

func TestFileEditorWriteThenRead(t *testing.T) {
	ws := t.TempDir()

	result := runEditor(t, ws, ports.FileEditorArgs{Operation: ports.FileWrite, Path: "notes.txt", Content: "hello"})
	require.False(t, result.IsError)
	assert.Equal(t, "File written successfully: notes.txt", result.Output)

	data, err := os.ReadFile(filepath.Join(ws, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	result = runEditor(t, ws, ports.FileEditorArgs{Operation: ports.FileRead, Path: filepath.Join(ws, "notes.txt")})
	require.False(t, result.IsError)
	assert.Equal(t, "hello", result.Output)
}

func TestFileEditorAppendCreatesParents(t *testing.T) {
	ws := t.TempDir()

	result := runEditor(t, ws, ports.FileEditorArgs{Operation: ports.FileAppend, Path: "logs/run.log", Content: "a"})
	require.False(t, result.IsError)
	assert.Equal(t, "Content appended to: logs/run.log", result.Output)

	runEditor(t, ws, ports.FileEditorArgs{Operation: ports.FileAppend, Path: "logs/run.log", Content: "b"})
	data, err := os.ReadFile(filepath.Join(ws, "logs", "run.log"))
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
}

func TestFileEditorReadMissingAndEmpty(t *testing.T) {
	ws := t.TempDir()

	result := runEditor(t, ws, ports.FileEditorArgs{Operation: ports.FileRead, Path: "missing.txt"})
	assert.True(t, result.IsError)
	assert.Equal(t, "File not found: missing.txt", result.Output)

	require.NoError(t, os.WriteFile(filepath.Join(ws, "empty.txt"), nil, 0o644))
	result = runEditor(t, ws, ports.FileEditorArgs{Operation: ports.FileRead, Path: "empty.txt"})
	assert.False(t, result.IsError)
	assert.Equal(t, "(file is empty)", result.Output)
}

func TestFileEditorUnknownOperation(t *testing.T) {
	result := runEditor(t, t.TempDir(), ports.FileEditorArgs{Operation: "delete", Path: "x"})
	assert.True(t, result.IsError)
	assert.Equal(t, "Unknown file action: delete. Use 'read', 'write', or 'append'.", result.Output)
}

func TestFileEditorRejectsWrongArgs(t *testing.T) {
	result := NewFileEditor().Execute(context.Background(), ports.ToolCall{Args: ports.TerminalArgs{Command: "ls"}})
	assert.True(t, result.IsError)
	assert.Equal(t, "invalid arguments", result.Output)
}
