package domain

import (
	"strings"
	"unicode"
)

const maxSignatureText = 160

// RetryPolicy is the bounded state machine behind self-correction. Each
// distinct error signature gets its own budget; a signature that has used
// its budget is never admitted again within the task.
type RetryPolicy struct {
	maxRetries int
	states     map[string]*RetryState
	total      int
}

// NewRetryPolicy creates a policy allowing maxRetries corrections per signature.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{maxRetries: maxRetries, states: make(map[string]*RetryState)}
}

// Admit records a correction attempt for signature. It returns the attempt
// number (1-based) and false once the budget is exhausted.
func (p *RetryPolicy) Admit(signature string) (int, bool) {
	state, ok := p.states[signature]
	if !ok {
		state = &RetryState{Signature: signature}
		p.states[signature] = state
	}
	if state.Attempts >= p.maxRetries {
		return state.Attempts, false
	}
	state.Attempts++
	p.total++
	return state.Attempts, true
}

// RecordFix remembers the action proposed for signature.
func (p *RetryPolicy) RecordFix(signature, fix string) {
	if state, ok := p.states[signature]; ok {
		state.LastFix = fix
	}
}

// State returns a copy of the retry state for signature.
func (p *RetryPolicy) State(signature string) (RetryState, bool) {
	state, ok := p.states[signature]
	if !ok {
		return RetryState{}, false
	}
	return *state, true
}

// MaxRetries is the per-signature ceiling.
func (p *RetryPolicy) MaxRetries() int { return p.maxRetries }

// Total is the number of corrections admitted across all signatures.
func (p *RetryPolicy) Total() int { return p.total }

// ErrorSignature derives a stable key from the tool and its error text.
// Digits are folded so line numbers, PIDs and exit codes that vary between
// otherwise identical failures map to the same signature.
func ErrorSignature(toolName, errorText string) string {
	return toolName + "|" + normalizeErrorText(errorText)
}

func normalizeErrorText(text string) string {
	line := ""
	for _, candidate := range strings.Split(text, "\n") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || candidate == "STDERR:" || candidate == "STDOUT:" {
			continue
		}
		line = candidate
		break
	}

	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(line) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune('#')
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	normalized := strings.TrimSpace(b.String())
	runes := []rune(normalized)
	if len(runes) > maxSignatureText {
		normalized = string(runes[:maxSignatureText])
	}
	return normalized
}
