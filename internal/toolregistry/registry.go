package toolregistry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"agentloop/internal/agent/ports"
	"agentloop/internal/tools/builtin"
)

// Registry holds the executors the dispatcher may route to.
type Registry struct {
	tools map[string]ports.ToolExecutor
	mu    sync.RWMutex
}

// Config selects how the built-in tools are constructed.
type Config struct {
	TerminalTimeout time.Duration
	SearchBackend   builtin.SearchBackend
	Memory          ports.MemoryStore
	Cache           CacheConfig
}

// NewRegistry creates a registry with web_search, terminal and file_editor.
func NewRegistry(config Config) (*Registry, error) {
	if config.SearchBackend == nil {
		return nil, fmt.Errorf("search backend is required")
	}
	r := &Registry{tools: make(map[string]ports.ToolExecutor)}

	var searchOpts []builtin.WebSearchOption
	if config.Memory != nil {
		searchOpts = append(searchOpts, builtin.WithSearchMemory(config.Memory))
	}
	builtins := []ports.ToolExecutor{
		NewCacheExecutor(builtin.NewWebSearch(config.SearchBackend, searchOpts...), config.Cache),
		builtin.NewTerminal(config.TerminalTimeout),
		builtin.NewFileEditor(),
	}
	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names are unique and finish is reserved.
func (r *Registry) Register(tool ports.ToolExecutor) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if name == ports.ToolFinish {
		return fmt.Errorf("tool name %q is reserved", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already exists: %s", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) Get(name string) (ports.ToolExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns tool metadata in name order, used to describe tools in prompts.
func (r *Registry) List() []ports.ToolMetadata {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.ToolMetadata, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].Metadata())
	}
	return out
}
