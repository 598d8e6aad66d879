package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"agentloop/internal/agent/ports"
)

const (
	defaultCacheMaxSize = 128
	defaultCacheTTL     = 10 * time.Minute
)

// CacheConfig configures the tool result cache.
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

// cacheExecutor memoizes successful results of side-effect free tools keyed
// by session, tool and normalized arguments.
type cacheExecutor struct {
	delegate ports.ToolExecutor
	cache    *expirable.LRU[string, ports.ToolResult]
}

// NewCacheExecutor wraps delegate with an expiring LRU. Dangerous tools are
// returned unwrapped.
func NewCacheExecutor(delegate ports.ToolExecutor, config CacheConfig) ports.ToolExecutor {
	if delegate == nil || delegate.Metadata().Dangerous {
		return delegate
	}
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	return &cacheExecutor{
		delegate: delegate,
		cache:    expirable.NewLRU[string, ports.ToolResult](config.MaxSize, nil, config.TTL),
	}
}

func (c *cacheExecutor) Execute(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	key, ok := cacheKey(call)
	if !ok {
		return c.delegate.Execute(ctx, call)
	}
	if cached, hit := c.cache.Get(key); hit {
		return cached
	}
	result := c.delegate.Execute(ctx, call)
	if !result.IsError {
		c.cache.Add(key, result)
	}
	return result
}

func (c *cacheExecutor) Metadata() ports.ToolMetadata {
	return c.delegate.Metadata()
}

func cacheKey(call ports.ToolCall) (string, bool) {
	if call.Args == nil {
		return "", false
	}
	data, err := json.Marshal(call.Args)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s:%s:%s", call.SessionID, call.Args.ToolName(), data), true
}
