package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"agentloop/internal/agent/ports"
)

const maxReadBytes = 256 * 1024

type fileEditor struct{}

// NewFileEditor reads, writes and appends files. Paths arrive already
// resolved inside the workspace by the dispatcher.
func NewFileEditor() ports.ToolExecutor {
	return &fileEditor{}
}

func (t *fileEditor) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:        ports.ToolFileEditor,
		Description: "Read, write or append a file in the task workspace. Args: {\"operation\": \"read|write|append\", \"path\": \"...\", \"content\": \"...\"}",
		Dangerous:   true,
	}
}

func (t *fileEditor) Execute(_ context.Context, call ports.ToolCall) ports.ToolResult {
	args, ok := call.Args.(ports.FileEditorArgs)
	if !ok || args.Path == "" {
		return ports.ToolResult{ToolName: ports.ToolFileEditor, Output: "invalid arguments", IsError: true}
	}
	path := args.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(call.Workspace, path)
	}
	display := displayPath(call.Workspace, path)

	fail := func(format string, a ...any) ports.ToolResult {
		msg := fmt.Sprintf(format, a...)
		return ports.ToolResult{ToolName: ports.ToolFileEditor, Output: msg, IsError: true, ErrorSnippet: msg}
	}

	switch args.Operation {
	case ports.FileRead:
		data, err := readLimited(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fail("File not found: %s", display)
			}
			return fail("File editor error: %v", err)
		}
		if len(data) == 0 {
			return success("(file is empty)")
		}
		return success(string(data))

	case ports.FileWrite:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fail("File editor error: %v", err)
		}
		if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
			return fail("File editor error: %v", err)
		}
		return success(fmt.Sprintf("File written successfully: %s", display))

	case ports.FileAppend:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fail("File editor error: %v", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fail("File editor error: %v", err)
		}
		_, writeErr := f.WriteString(args.Content)
		closeErr := f.Close()
		if writeErr != nil {
			return fail("File editor error: %v", writeErr)
		}
		if closeErr != nil {
			return fail("File editor error: %v", closeErr)
		}
		return success(fmt.Sprintf("Content appended to: %s", display))

	default:
		return fail("Unknown file action: %s. Use 'read', 'write', or 'append'.", args.Operation)
	}
}

func success(output string) ports.ToolResult {
	return ports.ToolResult{ToolName: ports.ToolFileEditor, Output: output}
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxReadBytes {
		return append(data[:maxReadBytes], []byte("\n... (file truncated)")...), nil
	}
	return data, nil
}

func displayPath(workspace, path string) string {
	rel, err := filepath.Rel(workspace, path)
	if err != nil {
		return path
	}
	return rel
}
