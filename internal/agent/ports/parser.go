package ports

// ActionKind is what a parsed reasoning response asks the loop to do.
type ActionKind string

const (
	ActionToolCall ActionKind = "tool_call"
	ActionFinish   ActionKind = "finish"
)

// ParseStage records which parser stage produced an action.
type ParseStage string

const (
	StageStrict   ParseStage = "strict"
	StageFallback ParseStage = "fallback"
	StageDefault  ParseStage = "default"
)

// Action is the loop-level reading of one reasoning response.
type Action struct {
	Thought  string
	Kind     ActionKind
	ToolName string
	Args     RawArgs
	Answer   string
	Stage    ParseStage
}

// ParseInput carries the response and the context the fallback stage needs.
type ParseInput struct {
	Response string
	Prompt   string
	Step     int
}

// ActionParser maps untrusted reasoning output to exactly one action.
type ActionParser interface {
	Parse(input ParseInput) Action
}
