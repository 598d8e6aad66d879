package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"agentloop/internal/agent/ports"
)

const (
	defaultTerminalTimeout = 60 * time.Second
	maxCommandOutput       = 64 * 1024
)

type terminal struct {
	timeout time.Duration
}

// NewTerminal runs shell commands with the task workspace as working directory.
func NewTerminal(timeout time.Duration) ports.ToolExecutor {
	if timeout <= 0 {
		timeout = defaultTerminalTimeout
	}
	return &terminal{timeout: timeout}
}

func (t *terminal) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:        ports.ToolTerminal,
		Description: "Run a bash command inside the task workspace. Args: {\"command\": \"...\"}",
		Dangerous:   true,
	}
}

func (t *terminal) Execute(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	args, ok := call.Args.(ports.TerminalArgs)
	if !ok || strings.TrimSpace(args.Command) == "" {
		return ports.ToolResult{ToolName: ports.ToolTerminal, Output: "invalid arguments", IsError: true}
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", args.Command)
	cmd.Dir = call.Workspace
	cmd.Env = append(os.Environ(), "HOME="+call.Workspace)
	cmd.WaitDelay = 2 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ports.ToolResult{
			ToolName: ports.ToolTerminal,
			Output:   fmt.Sprintf("Error: Command timed out after %d seconds.", int(t.timeout.Seconds())),
			IsError:  true,
		}
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return ports.ToolResult{
				ToolName: ports.ToolTerminal,
				Output:   fmt.Sprintf("Terminal error: %v", runErr),
				IsError:  true,
			}
		}
	}

	stdout := clip(stdoutBuf.String())
	stderr := clip(stderrBuf.String())

	var output strings.Builder
	if stdout != "" {
		output.WriteString("STDOUT:\n")
		output.WriteString(stdout)
	}
	if stderr != "" {
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString("STDERR:\n")
		output.WriteString(stderr)
	}
	if strings.TrimSpace(output.String()) == "" {
		output.Reset()
		output.WriteString("(command executed successfully, no output)")
	}
	if exitCode != 0 {
		fmt.Fprintf(&output, "\n(exit code: %d)", exitCode)
	}

	result := ports.ToolResult{
		ToolName: ports.ToolTerminal,
		Output:   output.String(),
		IsError:  exitCode != 0,
	}
	if result.IsError {
		result.ErrorSnippet = lastLines(stderr, 5)
		if result.ErrorSnippet == "" {
			result.ErrorSnippet = fmt.Sprintf("exit code %d", exitCode)
		}
	}
	return result
}

func clip(text string) string {
	if len(text) <= maxCommandOutput {
		return text
	}
	return text[:maxCommandOutput] + "\n... (output truncated)"
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
