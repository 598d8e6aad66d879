package memory

import (
	"sort"
	"strings"
	"unicode"

	"agentloop/internal/agent/ports"
)

const minKeywordLength = 3

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "from": {},
	"are": {}, "was": {}, "were": {}, "has": {}, "have": {}, "had": {}, "not": {},
	"but": {}, "you": {}, "your": {}, "into": {}, "its": {}, "can": {}, "will": {},
	"all": {}, "any": {}, "our": {}, "out": {}, "use": {}, "how": {}, "what": {},
	"when": {}, "where": {}, "who": {}, "why": {}, "which": {}, "then": {}, "than": {},
	"task": {}, "tool": {}, "result": {}, "search": {}, "please": {},
}

// ExtractKeywords returns the distinct lowercase alphanumeric tokens of text
// that are at least three characters long and not stopwords, in first-seen
// order.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) < minKeywordLength {
			continue
		}
		if _, skip := stopwords[field]; skip {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

type scored struct {
	entry ports.MemoryEntry
	score int
}

// Rank orders entries by descending keyword overlap, breaking ties by recency
// and then by key. Entries with no overlap are dropped; when nothing overlaps
// the most recent entries are returned instead.
func Rank(entries []ports.MemoryEntry, keywords []string, limit int) []ports.MemoryEntry {
	if len(entries) == 0 {
		return nil
	}
	query := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			query[kw] = struct{}{}
		}
	}

	candidates := make([]scored, 0, len(entries))
	for _, entry := range entries {
		score := 0
		for _, kw := range entry.Keywords {
			if _, ok := query[kw]; ok {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{entry: entry, score: score})
		}
	}
	if len(candidates) == 0 {
		for _, entry := range entries {
			candidates = append(candidates, scored{entry: entry})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.entry.Timestamp.Equal(b.entry.Timestamp) {
			return a.entry.Timestamp.After(b.entry.Timestamp)
		}
		return a.entry.Key > b.entry.Key
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]ports.MemoryEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}
