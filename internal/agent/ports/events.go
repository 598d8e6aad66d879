package ports

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of progress message emitted while a task runs.
type EventType string

const (
	EventStatus         EventType = "status"
	EventThought        EventType = "thought"
	EventToolStart      EventType = "tool_start"
	EventToolOutput     EventType = "tool_output"
	EventSelfCorrection EventType = "self_correction"
	EventFinalAnswer    EventType = "final_answer"
	EventError          EventType = "error"
)

// IsTerminal reports whether the event type closes a task's stream.
func (t EventType) IsTerminal() bool {
	return t == EventFinalAnswer || t == EventError
}

// Event is one JSON-shaped progress message for a single task.
//
// Fields are populated per type: tool events carry ToolName, thought and
// tool_start carry Step, self_correction carries RetryAttempt/MaxRetries and
// final_answer carries the StepsTaken/Retries summary.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	SessionID string    `json:"session_id,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	Step       int    `json:"step,omitempty"`
	TotalSteps int    `json:"total_steps,omitempty"`
	Status     string `json:"status,omitempty"`

	ToolName string `json:"tool_name,omitempty"`
	Args     string `json:"args,omitempty"`
	IsError  bool   `json:"has_error,omitempty"`

	RetryAttempt int    `json:"retry_attempt,omitempty"`
	MaxRetries   int    `json:"max_retries,omitempty"`
	ErrorSnippet string `json:"error_snippet,omitempty"`

	StepsTaken int `json:"steps_taken,omitempty"`
	Retries    int `json:"retries,omitempty"`
}

// MarshalJSON always writes has_error on tool_output and the summary counters
// on final_answer, even when they hold zero values.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	switch e.Type {
	case EventToolOutput:
		return json.Marshal(struct {
			alias
			IsError bool `json:"has_error"`
		}{alias: alias(e), IsError: e.IsError})
	case EventFinalAnswer:
		return json.Marshal(struct {
			alias
			StepsTaken int `json:"steps_taken"`
			Retries    int `json:"retries"`
		}{alias: alias(e), StepsTaken: e.StepsTaken, Retries: e.Retries})
	default:
		return json.Marshal(alias(e))
	}
}

// EventListener receives events produced by the loop engine. Implementations
// must not block: delivery is fire-and-forget.
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	if f != nil {
		f(event)
	}
}

type nopListener struct{}

func (nopListener) OnEvent(Event) {}

// NopListener discards every event.
func NopListener() EventListener {
	return nopListener{}
}
