package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	agentports "agentloop/internal/agent/ports"
)

const maxPrintedOutput = 600

// eventPrinter renders task events for a terminal.
type eventPrinter struct {
	out     io.Writer
	verbose bool

	status  *color.Color
	thought *color.Color
	tool    *color.Color
	output  *color.Color
	failure *color.Color
	correct *color.Color
	success *color.Color
}

func newEventPrinter(out io.Writer, noColor, verbose bool) *eventPrinter {
	p := &eventPrinter{
		out:     out,
		verbose: verbose,
		status:  color.New(color.FgHiBlack),
		thought: color.New(color.FgCyan),
		tool:    color.New(color.FgBlue, color.Bold),
		output:  color.New(color.FgHiBlack),
		failure: color.New(color.FgRed),
		correct: color.New(color.FgYellow),
		success: color.New(color.FgGreen, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.status, p.thought, p.tool, p.output, p.failure, p.correct, p.success} {
			c.DisableColor()
		}
	}
	return p
}

func (p *eventPrinter) Print(event agentports.Event) {
	switch event.Type {
	case agentports.EventStatus:
		if p.verbose {
			p.status.Fprintf(p.out, "· %s\n", event.Content)
		}
	case agentports.EventThought:
		p.thought.Fprintf(p.out, "[step %d] %s\n", event.Step, event.Content)
	case agentports.EventToolStart:
		p.tool.Fprintf(p.out, "→ %s", event.ToolName)
		if event.Args != "" {
			fmt.Fprintf(p.out, " %s", clip(event.Args, 200))
		}
		fmt.Fprintln(p.out)
	case agentports.EventToolOutput:
		text := clip(strings.TrimRight(event.Content, "\n"), maxPrintedOutput)
		if event.IsError {
			p.failure.Fprintf(p.out, "  ✗ %s\n", indent(text))
		} else {
			p.output.Fprintf(p.out, "  %s\n", indent(text))
		}
	case agentports.EventSelfCorrection:
		p.correct.Fprintf(p.out, "↻ self-correcting %s (attempt %d/%d)\n", event.ToolName, event.RetryAttempt, event.MaxRetries)
	case agentports.EventFinalAnswer:
		p.success.Fprintf(p.out, "\n✓ %s\n", event.Content)
		p.status.Fprintf(p.out, "  %d steps, %d retries\n", event.StepsTaken, event.Retries)
	case agentports.EventError:
		p.failure.Fprintf(p.out, "\n✗ %s\n", event.Content)
	}
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

func indent(text string) string {
	return strings.ReplaceAll(text, "\n", "\n  ")
}
