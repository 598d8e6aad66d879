package tools

import "errors"

var (
	// ErrPathEscape marks a path or command that reaches outside the task workspace.
	ErrPathEscape = errors.New("PathEscape")
	// ErrUnknownTool marks a tool name with no registered executor.
	ErrUnknownTool = errors.New("UnknownTool")
	// ErrInvalidArguments marks arguments that cannot be coerced to the tool's parameters.
	ErrInvalidArguments = errors.New("invalid arguments")
)
