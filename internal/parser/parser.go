// Package parser turns free-form reasoning output into loop actions. A strict
// JSON stage runs first; a pattern-based stage handles prose and code blocks;
// anything left becomes a finish action so the loop always progresses.
package parser

import (
	"strings"

	"agentloop/internal/agent/ports"
)

type parser struct{}

// New returns the two-stage action parser.
func New() ports.ActionParser {
	return &parser{}
}

func (p *parser) Parse(input ports.ParseInput) ports.Action {
	if action, ok := ParseStrict(input.Response); ok {
		return action
	}
	if action, ok := parseFallback(input); ok {
		return action
	}
	return ports.Action{
		Thought: "Answering directly from the response",
		Kind:    ports.ActionFinish,
		Answer:  strings.TrimSpace(input.Response),
		Stage:   ports.StageDefault,
	}
}

var toolAliases = map[string]string{
	"web_search":   ports.ToolWebSearch,
	"websearch":    ports.ToolWebSearch,
	"search":       ports.ToolWebSearch,
	"google":       ports.ToolWebSearch,
	"terminal":     ports.ToolTerminal,
	"bash":         ports.ToolTerminal,
	"shell":        ports.ToolTerminal,
	"sh":           ports.ToolTerminal,
	"run":          ports.ToolTerminal,
	"execute":      ports.ToolTerminal,
	"command":      ports.ToolTerminal,
	"file_editor":  ports.ToolFileEditor,
	"fileeditor":   ports.ToolFileEditor,
	"editor":       ports.ToolFileEditor,
	"write_file":   ports.ToolFileEditor,
	"read_file":    ports.ToolFileEditor,
	"file":         ports.ToolFileEditor,
	"finish":       ports.ToolFinish,
	"final_answer": ports.ToolFinish,
	"final":        ports.ToolFinish,
	"answer":       ports.ToolFinish,
	"done":         ports.ToolFinish,
}

// canonicalOrder is the substring match order; longer names first so
// "file_editor" is never read as "editor".
var canonicalOrder = []string{
	ports.ToolFileEditor,
	ports.ToolWebSearch,
	ports.ToolTerminal,
	ports.ToolFinish,
}

// MatchToolName maps a model-supplied tool name to a known tool,
// case-insensitively, via aliases or substring containment. Unknown names are
// returned unchanged with ok=false so the dispatcher can report them.
func MatchToolName(name string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if normalized == "" {
		return "", false
	}
	if canonical, ok := toolAliases[normalized]; ok {
		return canonical, true
	}
	for _, canonical := range canonicalOrder {
		if strings.Contains(normalized, canonical) {
			return canonical, true
		}
	}
	return normalized, false
}
