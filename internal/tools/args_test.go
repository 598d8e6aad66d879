package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/ports"
)

func TestNormalizeAcceptsEveryShape(t *testing.T) {
	cases := []struct {
		name string
		tool string
		raw  ports.RawArgs
		want ports.ToolArgs
	}{
		{
			name: "search object",
			tool: ports.ToolWebSearch,
			raw:  ports.ObjectArgs(map[string]any{"query": "golang generics"}),
			want: ports.WebSearchArgs{Query: "golang generics"},
		},
		{
			name: "search alias key",
			tool: ports.ToolWebSearch,
			raw:  ports.ObjectArgs(map[string]any{"q": "weather"}),
			want: ports.WebSearchArgs{Query: "weather"},
		},
		{
			name: "search positional quoted",
			tool: ports.ToolWebSearch,
			raw:  ports.TextArgs(`"latest go release"`),
			want: ports.WebSearchArgs{Query: "latest go release"},
		},
		{
			name: "terminal json text",
			tool: ports.ToolTerminal,
			raw:  ports.TextArgs(`{"command": "ls -la"}`),
			want: ports.TerminalArgs{Command: "ls -la"},
		},
		{
			name: "terminal repaired json text",
			tool: ports.ToolTerminal,
			raw:  ports.RawArgs{Shape: ports.ShapeText, Text: `{'command': 'echo hi',}`},
			want: ports.TerminalArgs{Command: "echo hi"},
		},
		{
			name: "terminal fenced text",
			tool: ports.ToolTerminal,
			raw:  ports.TextArgs("```bash\npwd\n```"),
			want: ports.TerminalArgs{Command: "pwd"},
		},
		{
			name: "terminal wrapped",
			tool: ports.ToolTerminal,
			raw:  ports.ObjectArgs(map[string]any{"args": map[string]any{"cmd": "whoami"}}),
			want: ports.TerminalArgs{Command: "whoami"},
		},
		{
			name: "editor object with action",
			tool: ports.ToolFileEditor,
			raw:  ports.ObjectArgs(map[string]any{"action": "append", "path": "log.txt", "content": "x"}),
			want: ports.FileEditorArgs{Operation: ports.FileAppend, Path: "log.txt", Content: "x"},
		},
		{
			name: "editor content implies write",
			tool: ports.ToolFileEditor,
			raw:  ports.ObjectArgs(map[string]any{"path": "notes.txt", "content": "hello"}),
			want: ports.FileEditorArgs{Operation: ports.FileWrite, Path: "notes.txt", Content: "hello"},
		},
		{
			name: "editor path only reads",
			tool: ports.ToolFileEditor,
			raw:  ports.ObjectArgs(map[string]any{"file": "notes.txt"}),
			want: ports.FileEditorArgs{Operation: ports.FileRead, Path: "notes.txt"},
		},
		{
			name: "editor positional",
			tool: ports.ToolFileEditor,
			raw:  ports.TextArgs("write notes.txt hello world"),
			want: ports.FileEditorArgs{Operation: ports.FileWrite, Path: "notes.txt", Content: "hello world"},
		},
		{
			name: "editor positional multiline",
			tool: ports.ToolFileEditor,
			raw:  ports.TextArgs("main.py\nprint('hi')\n"),
			want: ports.FileEditorArgs{Operation: ports.FileWrite, Path: "main.py", Content: "print('hi')"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.tool, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejectsInvalidArguments(t *testing.T) {
	cases := []struct {
		name string
		tool string
		raw  ports.RawArgs
	}{
		{"search empty", ports.ToolWebSearch, ports.RawArgs{}},
		{"terminal unrelated keys", ports.ToolTerminal, ports.ObjectArgs(map[string]any{"foo": 1})},
		{"editor no path", ports.ToolFileEditor, ports.ObjectArgs(map[string]any{"content": "x"})},
		{"editor bad op", ports.ToolFileEditor, ports.ObjectArgs(map[string]any{"operation": "delete", "path": "a"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.tool, tc.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArguments), "got %v", err)
		})
	}
}

func TestNormalizeUnknownTool(t *testing.T) {
	_, err := Normalize("browser", ports.ObjectArgs(map[string]any{"url": "x"}))
	assert.ErrorIs(t, err, ErrUnknownTool)
}
