package domain

import (
	"fmt"
	"strings"

	"agentloop/internal/agent/ports"
	tokenutil "agentloop/internal/shared/token"
)

// DefaultSystemPrompt instructs the model to answer with one JSON action.
const DefaultSystemPrompt = `You are an autonomous agent working in a Linux workspace. Solve the task one step at a time.

Reply with exactly one JSON object and nothing else:
{"thought": "<your reasoning>", "action": {"name": "<tool>", "args": {...}}}

When the task is done, reply with:
{"thought": "<why it is done>", "action": {"name": "finish", "args": {"answer": "<final answer for the user>"}}}

Rules:
- Take ONE action per reply.
- Paths are relative to the workspace. Never leave the workspace.
- Do not repeat a step that already succeeded.`

const minTranscriptTokens = 64

// correctionRequest asks the model to fix a failed action.
type correctionRequest struct {
	ToolName   string
	ErrorText  string
	Attempt    int
	MaxRetries int
}

// promptBuilder assembles the reasoning prompt within a token budget.
// Memory and instructions are always kept; transcript steps are dropped
// oldest first until the prompt fits.
type promptBuilder struct {
	system  string
	tools   []ports.ToolMetadata
	counter tokenutil.Counter
	budget  int
}

func (b promptBuilder) build(run TaskRun, memoryBlock string, steps []Step, correction *correctionRequest) string {
	var head strings.Builder
	head.WriteString(b.system)
	head.WriteString("\n\nAvailable tools:\n")
	for _, tool := range b.tools {
		fmt.Fprintf(&head, "- %s: %s\n", tool.Name, tool.Description)
	}
	fmt.Fprintf(&head, "- %s: Finish the task. Args: {\"answer\": \"...\"}\n", ports.ToolFinish)
	fmt.Fprintf(&head, "\nWorkspace: %s\n", run.Workspace)
	fmt.Fprintf(&head, "Task: %s\n", run.Prompt)
	if memoryBlock != "" {
		head.WriteString("\n")
		head.WriteString(memoryBlock)
	}

	tail := ""
	if correction != nil {
		tail = fmt.Sprintf("\nThe last %s action failed (correction attempt %d of %d). Error:\n%s\n"+
			"Propose a corrected action that avoids this error, in the same JSON format.\n",
			correction.ToolName, correction.Attempt, correction.MaxRetries, correction.ErrorText)
	} else if len(steps) == 0 {
		tail = "\nThis is the first step.\n"
	} else {
		tail = "\nContinue with the next step. Do not repeat completed steps.\n"
	}

	rendered := make([]string, len(steps))
	for i, step := range steps {
		rendered[i] = renderStep(step)
	}

	fixed := head.String() + tail
	if b.budget <= 0 || b.counter == nil {
		return assemble(head.String(), tail, rendered, 0)
	}

	fixedTokens := b.counter.Count(fixed)
	dropped := 0
	for dropped < len(rendered)-1 && fixedTokens+b.counter.Count(transcript(rendered[dropped:], dropped)) > b.budget {
		dropped++
	}
	kept := rendered[dropped:]
	if len(kept) == 1 {
		room := b.budget - fixedTokens
		if room < minTranscriptTokens {
			room = minTranscriptTokens
		}
		if b.counter.Count(kept[0]) > room {
			kept = []string{tokenutil.TruncateToTokens(b.counter, kept[0], room)}
		}
	}
	return assemble(head.String(), tail, kept, dropped)
}

func assemble(head, tail string, steps []string, dropped int) string {
	var b strings.Builder
	b.WriteString(head)
	if len(steps) > 0 {
		b.WriteString("\n")
		b.WriteString(transcript(steps, dropped))
	}
	b.WriteString(tail)
	return b.String()
}

func transcript(steps []string, dropped int) string {
	var b strings.Builder
	b.WriteString("Previous steps:\n")
	if dropped > 0 {
		fmt.Fprintf(&b, "(%d earlier steps omitted)\n", dropped)
	}
	for _, step := range steps {
		b.WriteString(step)
		b.WriteString("\n")
	}
	return b.String()
}

func renderStep(step Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d:\n", step.Index)
	if step.Thought != "" {
		fmt.Fprintf(&b, "Thought: %s\n", step.Thought)
	}
	action := step.ToolName
	if step.Action == ports.ActionFinish {
		action = ports.ToolFinish
	}
	fmt.Fprintf(&b, "Action: %s\n", action)
	if step.ToolArgs != "" {
		fmt.Fprintf(&b, "Action Input: %s\n", step.ToolArgs)
	}
	if step.Observation != "" {
		prefix := "Observation"
		if step.IsError {
			prefix = "Observation (error)"
		}
		fmt.Fprintf(&b, "%s: %s\n", prefix, step.Observation)
	}
	return b.String()
}
