package memory

import (
	"fmt"
	"strings"
	"time"

	"agentloop/internal/agent/ports"
	"agentloop/internal/shared/utils/id"
)

// Options bounds what a store retains per session.
type Options struct {
	MaxEntries    int
	MaxTextLength int
	DefaultLimit  int
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = 100
	}
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = 1000
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// prepare fills derived fields of a new entry.
func (o Options) prepare(sessionID string, entry ports.MemoryEntry) ports.MemoryEntry {
	entry.SessionID = sessionID
	if entry.Key == "" {
		entry.Key = id.NewKSUID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = o.Now()
	}
	entry.Text = truncate(strings.TrimSpace(entry.Text), o.MaxTextLength)
	if len(entry.Keywords) == 0 {
		entry.Keywords = ExtractKeywords(entry.Text)
	}
	return entry
}

// TaskResultEntry builds the task_result fact appended when a task finishes.
func TaskResultEntry(prompt, lastTool, answer string) ports.MemoryEntry {
	if lastTool == "" {
		lastTool = "none"
	}
	return ports.MemoryEntry{
		Kind: ports.MemoryTaskResult,
		Text: fmt.Sprintf("Task: %s | Tool: %s | Result: %s", truncate(prompt, 200), lastTool, truncate(answer, 300)),
	}
}

// SearchResultEntry builds the search_result fact appended after a successful web search.
func SearchResultEntry(query, result string) ports.MemoryEntry {
	return ports.MemoryEntry{
		Kind: ports.MemorySearchResult,
		Text: fmt.Sprintf("Search '%s': %s", truncate(query, 100), truncate(result, 500)),
	}
}

// FormatForPrompt renders retrieved entries as a prompt section.
func FormatForPrompt(entries []ports.MemoryEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant memory from earlier tasks in this session:\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "- [%s] %s\n", entry.Kind, entry.Text)
	}
	return b.String()
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
