package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentloop/internal/agent/ports"
)

func fixedNow(base time.Time) func() time.Time {
	var mu sync.Mutex
	current := base
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func TestFileStoreAppendAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, Options{Now: fixedNow(time.Unix(1_700_000_000, 0))})
	require.NoError(t, store.EnsureSchema(context.Background()))
	ctx := context.Background()

	saved, err := store.Append(ctx, "s1", TaskResultEntry("Deploy the staging cluster", "terminal", "kubectl applied"))
	require.NoError(t, err)
	require.NotEmpty(t, saved.Key)
	require.Equal(t, "s1", saved.SessionID)
	require.Contains(t, saved.Keywords, "staging")

	_, err = store.Append(ctx, "s1", SearchResultEntry("golang generics", "Go 1.18 added type parameters"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "s1.yaml"))
	require.NoError(t, err)

	results, err := store.Retrieve(ctx, "s1", ExtractKeywords("what changed in golang generics"), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ports.MemorySearchResult, results[0].Kind)
	require.True(t, strings.HasPrefix(results[0].Text, "Search 'golang generics': "))

	other, err := store.Retrieve(ctx, "s2", []string{"golang"}, 5)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestFileStoreRetrieveOrdering(t *testing.T) {
	store := NewFileStore(t.TempDir(), Options{})
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	add := func(key, text string, offset time.Duration) {
		_, err := store.Append(ctx, "s1", ports.MemoryEntry{
			Key:       key,
			Kind:      ports.MemoryTaskResult,
			Text:      text,
			Timestamp: base.Add(offset),
		})
		require.NoError(t, err)
	}
	add("a", "python flask server", 1*time.Minute)
	add("b", "python script", 2*time.Minute)
	add("c", "python flask deploy", 3*time.Minute)
	add("d", "unrelated notes", 4*time.Minute)

	for i := 0; i < 3; i++ {
		results, err := store.Retrieve(ctx, "s1", []string{"python", "flask"}, 5)
		require.NoError(t, err)
		keys := make([]string, len(results))
		for i, r := range results {
			keys[i] = r.Key
		}
		require.Equal(t, []string{"c", "a", "b"}, keys)
	}

	recent, err := store.Retrieve(ctx, "s1", []string{"kubernetes"}, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "d", recent[0].Key)
	require.Equal(t, "c", recent[1].Key)
}

func TestFileStoreTrimsOldestEntries(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, Options{MaxEntries: 3, MaxTextLength: 10, Now: fixedNow(time.Unix(0, 0))})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, "s1", ports.MemoryEntry{
			Key:  fmt.Sprintf("k%d", i),
			Kind: ports.MemoryTaskResult,
			Text: fmt.Sprintf("entry number %d with a long tail", i),
		})
		require.NoError(t, err)
	}

	entries, err := readSessionFile(filepath.Join(dir, "s1.yaml"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "k2", entries[0].Key)
	require.Equal(t, "k4", entries[2].Key)
	require.Equal(t, "entry numb", entries[2].Text)
}

func TestFileStoreRejectsUnsafeSession(t *testing.T) {
	store := NewFileStore(t.TempDir(), Options{})
	_, err := store.Append(context.Background(), "../escape", ports.MemoryEntry{Text: "x"})
	require.Error(t, err)
	_, err = store.Retrieve(context.Background(), "a/b", nil, 1)
	require.Error(t, err)
}

func TestFileStoreConcurrentAppendsSameSession(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, "shared", ports.MemoryEntry{Kind: ports.MemoryTaskResult, Text: fmt.Sprintf("parallel write %d", i)})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := readSessionFile(filepath.Join(dir, "shared.yaml"))
	require.NoError(t, err)
	require.Len(t, entries, 20)
}

func TestFileStorePruneIdle(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, Options{})
	ctx := context.Background()

	_, err := store.Append(ctx, "old", ports.MemoryEntry{Text: "stale"})
	require.NoError(t, err)
	_, err = store.Append(ctx, "fresh", ports.MemoryEntry{Text: "recent"})
	require.NoError(t, err)

	now := time.Now()
	past := now.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.yaml"), past, past))

	removed, err := store.PruneIdle(ctx, RetentionPolicy{IdleHorizon: 24 * time.Hour}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, removed)

	_, err = os.Stat(filepath.Join(dir, "old.yaml"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "fresh.yaml"))
	require.NoError(t, err)

	none, err := store.PruneIdle(ctx, RetentionPolicy{}, now)
	require.NoError(t, err)
	require.Empty(t, none)
}
