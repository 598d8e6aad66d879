package ports

import (
	"context"
	"encoding/json"
	"strings"
)

// Tool names understood by the dispatcher. Finish is handled by the engine.
const (
	ToolWebSearch  = "web_search"
	ToolTerminal   = "terminal"
	ToolFileEditor = "file_editor"
	ToolFinish     = "finish"
)

// ArgShape tags how a tool's arguments were supplied by the model.
type ArgShape int

const (
	// ShapeNone means no arguments were supplied.
	ShapeNone ArgShape = iota
	// ShapeObject is a structured key/value object.
	ShapeObject
	// ShapeJSONText is a string that itself holds a JSON document.
	ShapeJSONText
	// ShapeText is free positional text.
	ShapeText
)

func (s ArgShape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeJSONText:
		return "json_text"
	case ShapeText:
		return "text"
	default:
		return "none"
	}
}

// RawArgs is the un-normalized argument payload produced by the parser.
type RawArgs struct {
	Shape  ArgShape
	Object map[string]any
	Text   string
}

// ObjectArgs wraps a structured argument object.
func ObjectArgs(obj map[string]any) RawArgs {
	if len(obj) == 0 {
		return RawArgs{Shape: ShapeNone}
	}
	return RawArgs{Shape: ShapeObject, Object: obj}
}

// TextArgs wraps a string argument, tagging it as JSON text when it parses as
// a JSON object.
func TextArgs(text string) RawArgs {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return RawArgs{Shape: ShapeNone}
	}
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return RawArgs{Shape: ShapeJSONText, Text: trimmed}
	}
	return RawArgs{Shape: ShapeText, Text: text}
}

// String renders the payload for transcripts and tool_start events.
func (a RawArgs) String() string {
	switch a.Shape {
	case ShapeObject:
		data, err := json.Marshal(a.Object)
		if err != nil {
			return "{}"
		}
		return string(data)
	case ShapeJSONText, ShapeText:
		return a.Text
	default:
		return "{}"
	}
}

// ToolArgs is the canonical, typed argument record of one tool.
type ToolArgs interface {
	ToolName() string
}

// WebSearchArgs are the canonical arguments of web_search.
type WebSearchArgs struct {
	Query string `json:"query"`
}

func (WebSearchArgs) ToolName() string { return ToolWebSearch }

// TerminalArgs are the canonical arguments of terminal.
type TerminalArgs struct {
	Command string `json:"command"`
}

func (TerminalArgs) ToolName() string { return ToolTerminal }

// FileOperation selects what file_editor does.
type FileOperation string

const (
	FileRead   FileOperation = "read"
	FileWrite  FileOperation = "write"
	FileAppend FileOperation = "append"
)

// FileEditorArgs are the canonical arguments of file_editor. Path is
// workspace-relative until the dispatcher resolves it.
type FileEditorArgs struct {
	Operation FileOperation `json:"operation"`
	Path      string        `json:"path"`
	Content   string        `json:"content,omitempty"`
}

func (FileEditorArgs) ToolName() string { return ToolFileEditor }

// ToolCall is one normalized invocation handed to a tool executor.
type ToolCall struct {
	TaskID    string
	SessionID string
	Workspace string
	Args      ToolArgs
}

// ToolResult is the uniform envelope returned for every dispatch.
type ToolResult struct {
	ToolName     string `json:"tool_name"`
	Output       string `json:"output"`
	IsError      bool   `json:"is_error"`
	ErrorSnippet string `json:"error_snippet,omitempty"`
}

// ToolMetadata describes a registered tool.
type ToolMetadata struct {
	Name        string
	Description string
	Dangerous   bool
}

// ToolExecutor performs a tool's side effects. Executors report failures in
// the result rather than as Go errors.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) ToolResult
	Metadata() ToolMetadata
}

// ToolDispatcher routes a named tool call to its executor inside one task's
// workspace. Dispatch never panics and never returns a Go error.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, toolName string, args RawArgs) ToolResult
}
