package toolregistry

import (
	"context"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"agentloop/internal/agent/ports"
)

type countingSearch struct {
	calls atomic.Int32
}

func (c *countingSearch) Name() string { return "counting" }

func (c *countingSearch) Search(_ context.Context, query string) (string, error) {
	c.calls.Add(1)
	return "result for " + query, nil
}

type namedTool struct {
	name      string
	dangerous bool
	calls     int
	output    ports.ToolResult
}

func (n *namedTool) Execute(context.Context, ports.ToolCall) ports.ToolResult {
	n.calls++
	return n.output
}

func (n *namedTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: n.name, Dangerous: n.dangerous}
}

func TestNewRegistryRegistersBuiltins(t *testing.T) {
	registry, err := NewRegistry(Config{SearchBackend: &countingSearch{}})
	if err != nil {
		t.Fatalf("unexpected error creating registry: %v", err)
	}
	want := []string{ports.ToolFileEditor, ports.ToolTerminal, ports.ToolWebSearch}
	if got := registry.Names(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(registry.List()) != 3 {
		t.Fatalf("expected 3 tool descriptions")
	}
}

func TestNewRegistryRequiresSearchBackend(t *testing.T) {
	if _, err := NewRegistry(Config{}); err == nil {
		t.Fatalf("expected error without search backend")
	}
}

func TestRegisterRejectsDuplicatesAndFinish(t *testing.T) {
	registry, err := NewRegistry(Config{SearchBackend: &countingSearch{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.Register(&namedTool{name: ports.ToolTerminal}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := registry.Register(&namedTool{name: ports.ToolFinish}); err == nil {
		t.Fatalf("expected finish to be reserved")
	}
	if err := registry.Register(&namedTool{name: "echo"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := registry.Get("echo"); !ok {
		t.Fatalf("expected echo to be registered")
	}
}

func TestWebSearchResultsAreCachedPerSession(t *testing.T) {
	backend := &countingSearch{}
	registry, err := NewRegistry(Config{SearchBackend: backend, Cache: CacheConfig{MaxSize: 4, TTL: time.Minute}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tool, _ := registry.Get(ports.ToolWebSearch)

	call := ports.ToolCall{SessionID: "s1", Args: ports.WebSearchArgs{Query: "go"}}
	first := tool.Execute(context.Background(), call)
	second := tool.Execute(context.Background(), call)
	if first.Output != second.Output {
		t.Fatalf("cached output differs: %q vs %q", first.Output, second.Output)
	}
	if backend.calls.Load() != 1 {
		t.Fatalf("expected one backend call, got %d", backend.calls.Load())
	}

	call.SessionID = "s2"
	tool.Execute(context.Background(), call)
	if backend.calls.Load() != 2 {
		t.Fatalf("expected a separate entry for another session")
	}
}

func TestCacheSkipsDangerousAndErrorResults(t *testing.T) {
	dangerous := &namedTool{name: "terminal", dangerous: true}
	if NewCacheExecutor(dangerous, CacheConfig{}) != ports.ToolExecutor(dangerous) {
		t.Fatalf("dangerous tools must not be wrapped")
	}

	failing := &namedTool{name: "lookup", output: ports.ToolResult{Output: "boom", IsError: true}}
	cached := NewCacheExecutor(failing, CacheConfig{})
	call := ports.ToolCall{Args: ports.WebSearchArgs{Query: "x"}}
	cached.Execute(context.Background(), call)
	cached.Execute(context.Background(), call)
	if failing.calls != 2 {
		t.Fatalf("error results must not be cached, got %d calls", failing.calls)
	}
}
