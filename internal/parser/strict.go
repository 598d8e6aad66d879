package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"agentloop/internal/agent/ports"
)

var (
	argKeys    = []string{"args", "arguments", "action_input", "input", "parameters", "params"}
	answerKeys = []string{"answer", "final_answer", "content", "text", "result", "summary", "raw"}
)

// ParseStrict reads the structured format:
//
//	{"thought": "...", "action": {"name": "terminal", "args": {...}}}
//	{"thought": "...", "action": "terminal", "action_input": "..."}
//
// Code fences and surrounding prose are tolerated and slightly malformed JSON
// is repaired. ok is false when no object with an action can be recovered.
func ParseStrict(text string) (ports.Action, bool) {
	data, ok := extractObject(text)
	if !ok {
		return ports.Action{}, false
	}

	thought := stringField(data, "thought", "reasoning", "reason")
	if thought == "" {
		thought = "Processing..."
	}

	var (
		name string
		args any
	)
	switch action := data["action"].(type) {
	case map[string]any:
		name = stringField(action, "name", "tool", "tool_name")
		args = firstValue(action, argKeys)
	case string:
		name = action
		args = firstValue(data, argKeys)
	case nil:
		if answer := stringField(data, "final_answer", "answer"); answer != "" {
			return ports.Action{Thought: thought, Kind: ports.ActionFinish, Answer: answer, Stage: ports.StageStrict}, true
		}
		return ports.Action{}, false
	default:
		return ports.Action{}, false
	}
	if strings.TrimSpace(name) == "" {
		return ports.Action{}, false
	}

	canonical, _ := MatchToolName(name)
	if canonical == ports.ToolFinish {
		answer := answerFrom(args)
		if answer == "" {
			answer = stringField(data, answerKeys...)
		}
		return ports.Action{Thought: thought, Kind: ports.ActionFinish, Answer: answer, Stage: ports.StageStrict}, true
	}

	return ports.Action{
		Thought:  thought,
		Kind:     ports.ActionToolCall,
		ToolName: canonical,
		Args:     rawArgs(args),
		Stage:    ports.StageStrict,
	}, true
}

// extractObject strips fences, isolates the outermost braces and decodes
// them, repairing the JSON when the plain decode fails.
func extractObject(text string) (map[string]any, bool) {
	clean := strings.TrimSpace(text)
	if strings.Contains(clean, "```") {
		clean = strings.ReplaceAll(clean, "```json", "")
		clean = strings.ReplaceAll(clean, "```JSON", "")
		clean = strings.ReplaceAll(clean, "```", "")
	}
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := clean[start : end+1]

	var data map[string]any
	if err := json.Unmarshal([]byte(candidate), &data); err == nil {
		return data, true
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &data); err != nil {
		return nil, false
	}
	return data, true
}

func rawArgs(value any) ports.RawArgs {
	switch v := value.(type) {
	case nil:
		return ports.RawArgs{}
	case map[string]any:
		return ports.ObjectArgs(v)
	case string:
		return ports.TextArgs(v)
	default:
		return ports.TextArgs(fmt.Sprint(v))
	}
}

func answerFrom(args any) string {
	switch v := args.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return stringField(v, answerKeys...)
	default:
		return ""
	}
}

func firstValue(obj map[string]any, keys []string) any {
	for _, key := range keys {
		if value, ok := obj[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := obj[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
