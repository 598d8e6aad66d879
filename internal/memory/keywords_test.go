package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/ports"
)

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Create a file named notes.txt with the Notes: hello, HELLO!")
	require.Equal(t, []string{"create", "file", "named", "notes", "txt", "hello"}, got)
	require.Empty(t, ExtractKeywords("a an to of"))
}

func TestTaskResultEntryFormatting(t *testing.T) {
	entry := TaskResultEntry(strings.Repeat("p", 250), "", strings.Repeat("r", 400))
	require.Equal(t, ports.MemoryTaskResult, entry.Kind)
	require.True(t, strings.HasPrefix(entry.Text, "Task: "+strings.Repeat("p", 200)+" | Tool: none | Result: "))
	require.True(t, strings.HasSuffix(entry.Text, strings.Repeat("r", 300)))
}

func TestFormatForPrompt(t *testing.T) {
	require.Empty(t, FormatForPrompt(nil))
	out := FormatForPrompt([]ports.MemoryEntry{{Kind: ports.MemorySearchResult, Text: "Search 'x': y"}})
	require.Contains(t, out, "- [search_result] Search 'x': y")
}

func TestInMemoryStoreRankingAndPrune(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	now := base
	store := NewInMemoryStore(Options{MaxEntries: 2, Now: func() time.Time { return now }})
	ctx := context.Background()

	_, _ = store.Append(ctx, "s", ports.MemoryEntry{Key: "1", Text: "alpha beta", Timestamp: base})
	_, _ = store.Append(ctx, "s", ports.MemoryEntry{Key: "2", Text: "alpha gamma", Timestamp: base.Add(time.Second)})
	_, _ = store.Append(ctx, "s", ports.MemoryEntry{Key: "3", Text: "alpha beta gamma", Timestamp: base.Add(2 * time.Second)})

	results, err := store.Retrieve(ctx, "s", []string{"alpha", "beta"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "3", results[0].Key)
	require.Equal(t, "2", results[1].Key)

	now = base.Add(25 * time.Hour)
	removed, err := store.PruneIdle(ctx, RetentionPolicy{IdleHorizon: 24 * time.Hour}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"s"}, removed)

	results, err = store.Retrieve(ctx, "s", []string{"alpha"}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}
