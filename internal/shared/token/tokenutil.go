// Package tokenutil counts prompt tokens. The tiktoken cl100k_base encoding is
// loaded lazily on first use because loading may fetch the BPE ranks over the
// network; callers that cannot afford that use Estimator.
package tokenutil

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures text in tokens.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// Estimator is a network-free Counter backed by EstimateFast.
var Estimator Counter = CounterFunc(EstimateFast)

type tiktokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

var shared = &tiktokenCounter{}

// Tiktoken returns the process-wide cl100k_base Counter. When the encoding
// cannot be loaded it degrades to EstimateFast.
func Tiktoken() Counter {
	return shared
}

func (c *tiktokenCounter) load() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.encoding = enc
		}
	})
	return c.encoding
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// EstimateFast returns a heuristic token estimate: max(runes/4, word_count).
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// TruncateToTokens keeps roughly the first maxTokens tokens of text as
// measured by counter, appending "..." when anything was cut.
func TruncateToTokens(counter Counter, text string, maxTokens int) string {
	if maxTokens <= 0 || counter.Count(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.Count(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]) + "..."
}
