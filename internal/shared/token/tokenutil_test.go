package tokenutil

import (
	"strings"
	"testing"
)

func TestEstimateFast_Empty(t *testing.T) {
	if got := EstimateFast("   \n\t  "); got != 0 {
		t.Errorf("EstimateFast(whitespace) = %d, want 0", got)
	}
}

func TestEstimateFast_MinWordCount(t *testing.T) {
	// "a b c d" has 4 words, 7 runes → runes/4=1, but word count=4 → max is 4
	if got := EstimateFast("a b c d"); got != 4 {
		t.Errorf("EstimateFast(\"a b c d\") = %d, want 4", got)
	}
}

func TestTruncateToTokens_NoTruncation(t *testing.T) {
	if got := TruncateToTokens(Estimator, "short", 100); got != "short" {
		t.Errorf("TruncateToTokens = %q, want unchanged", got)
	}
	if got := TruncateToTokens(Estimator, "anything", 0); got != "anything" {
		t.Errorf("zero budget should be a no-op, got %q", got)
	}
}

func TestTruncateToTokens_FitsBudget(t *testing.T) {
	text := strings.Repeat("hello world ", 100)
	got := TruncateToTokens(Estimator, text, 10)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated result should end with '...', got %q", got)
	}
	if n := Estimator.Count(strings.TrimSuffix(got, "...")); n > 10 {
		t.Fatalf("kept %d tokens, want <= 10", n)
	}
}

func TestCounterFunc(t *testing.T) {
	var c Counter = CounterFunc(func(s string) int { return len(s) })
	if c.Count("abc") != 3 {
		t.Fatal("CounterFunc should delegate")
	}
}
