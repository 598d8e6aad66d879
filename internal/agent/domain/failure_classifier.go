package domain

import (
	"strings"

	"agentloop/internal/agent/ports"
)

// FailureClassifier decides whether a tool result is a failure. Explicit
// IsError always wins; otherwise output is scanned for configured markers.
// Matching is a plain substring test, so a marker quoted in otherwise
// successful output is a false positive and costs one extra retry.
type FailureClassifier struct {
	markers []string
	// heuristicTools limits marker scanning; search results routinely quote
	// error text and are never scanned.
	heuristicTools map[string]bool
}

// NewFailureClassifier builds a classifier over the given markers.
func NewFailureClassifier(markers []string) *FailureClassifier {
	cleaned := make([]string, 0, len(markers))
	for _, marker := range markers {
		if marker = strings.TrimSpace(marker); marker != "" {
			cleaned = append(cleaned, marker)
		}
	}
	return &FailureClassifier{
		markers: cleaned,
		heuristicTools: map[string]bool{
			ports.ToolTerminal:   true,
			ports.ToolFileEditor: true,
		},
	}
}

// Classify returns whether the result failed and the error text that best
// describes the failure.
func (c *FailureClassifier) Classify(result ports.ToolResult) (bool, string) {
	if result.IsError {
		text := result.ErrorSnippet
		if strings.TrimSpace(text) == "" {
			text = result.Output
		}
		return true, text
	}
	if c == nil || !c.heuristicTools[result.ToolName] {
		return false, ""
	}
	for _, line := range strings.Split(result.Output, "\n") {
		for _, marker := range c.markers {
			if strings.Contains(line, marker) {
				return true, strings.TrimSpace(line)
			}
		}
	}
	return false, ""
}
