// Package tools routes normalized tool calls to their executors inside a
// task's workspace.
package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"agentloop/internal/agent/ports"
	"agentloop/internal/shared/logging"
	"agentloop/internal/shared/utils/id"
)

// Lookup resolves registered executors by name.
type Lookup interface {
	Get(name string) (ports.ToolExecutor, bool)
	Names() []string
}

// Observer is notified after every dispatch.
type Observer func(toolName string, isError bool, duration time.Duration)

// Scope identifies the task a scoped dispatcher works for.
type Scope struct {
	TaskID    string
	SessionID string
	Workspace string
}

// Dispatcher normalizes arguments, enforces workspace confinement and
// converts every failure into an error ToolResult.
type Dispatcher struct {
	lookup   Lookup
	observer Observer
	logger   logging.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithObserver installs a dispatch observer, typically a metrics recorder.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) { d.observer = observer }
}

// WithLogger overrides the dispatcher logger.
func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrNop(logger) }
}

// NewDispatcher creates a dispatcher over the given executors.
func NewDispatcher(lookup Lookup, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lookup: lookup,
		logger: logging.NewComponentLogger("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Scoped binds the dispatcher to one task's workspace.
func (d *Dispatcher) Scoped(scope Scope) ports.ToolDispatcher {
	return &scopedDispatcher{parent: d, scope: scope}
}

type scopedDispatcher struct {
	parent *Dispatcher
	scope  Scope
}

func (s *scopedDispatcher) Dispatch(ctx context.Context, toolName string, args ports.RawArgs) ports.ToolResult {
	return s.parent.Dispatch(ctx, s.scope, toolName, args)
}

// Dispatch runs one tool call. It never panics and never returns a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, scope Scope, toolName string, args ports.RawArgs) (result ports.ToolResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ids := id.IDsFromContext(ctx)
			d.logger.Error("Tool %s panicked (task=%s session=%s): %v\n%s", toolName, ids.TaskID, ids.SessionID, r, debug.Stack())
			result = errorResult(toolName, fmt.Sprintf("Error executing tool '%s': %v", toolName, r), fmt.Sprint(r))
		}
		if d.observer != nil {
			d.observer(toolName, result.IsError, time.Since(started))
		}
	}()

	if toolName == ports.ToolFinish {
		return errorResult(toolName, "finish is handled by the agent loop and cannot be dispatched", "")
	}

	executor, ok := d.lookup.Get(toolName)
	if !ok {
		msg := fmt.Sprintf("%s: tool '%s' not found. Available tools: %s",
			ErrUnknownTool, toolName, strings.Join(d.available(), ", "))
		return errorResult(toolName, msg, msg)
	}

	normalized, err := Normalize(toolName, args)
	if err != nil {
		return invalidArgumentsResult(toolName, err)
	}

	normalized, err = confine(scope.Workspace, normalized)
	if err != nil {
		if errors.Is(err, ErrPathEscape) {
			d.logger.Warn("Rejected %s call for task %s: %v", toolName, scope.TaskID, err)
			return errorResult(toolName, err.Error(), err.Error())
		}
		return invalidArgumentsResult(toolName, err)
	}

	result = executor.Execute(ctx, ports.ToolCall{
		TaskID:    scope.TaskID,
		SessionID: scope.SessionID,
		Workspace: scope.Workspace,
		Args:      normalized,
	})
	result.ToolName = toolName
	if result.IsError && result.ErrorSnippet == "" {
		result.ErrorSnippet = snippet(result.Output)
	}
	return result
}

// confine resolves workspace-relative paths and rejects escapes.
func confine(workspace string, args ports.ToolArgs) (ports.ToolArgs, error) {
	switch a := args.(type) {
	case ports.FileEditorArgs:
		resolved, err := ResolveWorkspacePath(workspace, a.Path)
		if err != nil {
			return nil, err
		}
		a.Path = resolved
		return a, nil
	case ports.TerminalArgs:
		if err := CheckCommandPaths(workspace, a.Command); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return args, nil
	}
}

func (d *Dispatcher) available() []string {
	names := append(d.lookup.Names(), ports.ToolFinish)
	sort.Strings(names)
	return names
}

func invalidArgumentsResult(toolName string, err error) ports.ToolResult {
	detail := strings.TrimPrefix(err.Error(), ErrInvalidArguments.Error()+": ")
	return errorResult(toolName, ErrInvalidArguments.Error(), detail)
}

func errorResult(toolName, output, errSnippet string) ports.ToolResult {
	return ports.ToolResult{
		ToolName:     toolName,
		Output:       output,
		IsError:      true,
		ErrorSnippet: snippet(errSnippet),
	}
}

const maxSnippet = 300

func snippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxSnippet {
		return text
	}
	return string(runes[:maxSnippet]) + "..."
}
