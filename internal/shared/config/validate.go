package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Field   string
	Message string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationError aggregates every blocking issue found by Validate.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Validate checks bounds and enumerations.
func (cfg RuntimeConfig) Validate() error {
	var issues []ValidationIssue
	add := func(field, format string, args ...any) {
		issues = append(issues, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		add("server.addr", "must not be empty")
	}
	if cfg.Server.EventBuffer <= 0 {
		add("server.event_buffer", "must be positive, got %d", cfg.Server.EventBuffer)
	}
	if cfg.Agent.MaxSteps <= 0 {
		add("agent.max_steps", "must be positive, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.SelfCorrection.MaxRetriesPerError < 0 {
		add("self_correction.max_retries_per_error", "must not be negative")
	}
	if cfg.Reasoning.MaxAttempts <= 0 {
		add("reasoning.max_attempts", "must be positive, got %d", cfg.Reasoning.MaxAttempts)
	}
	if cfg.Admission.RateLimit <= 0 {
		add("admission.rate_limit", "must be positive, got %d", cfg.Admission.RateLimit)
	}
	if cfg.Admission.RateWindow <= 0 {
		add("admission.rate_window", "must be positive")
	}
	if cfg.Admission.MaxConcurrentTasks <= 0 {
		add("admission.max_concurrent_tasks", "must be positive, got %d", cfg.Admission.MaxConcurrentTasks)
	}
	if strings.TrimSpace(cfg.Workspace.Root) == "" {
		add("workspace.root", "must not be empty")
	}
	if cfg.Workspace.CleanupDelay < 0 {
		add("workspace.cleanup_delay", "must not be negative")
	}
	if strings.TrimSpace(cfg.Memory.Dir) == "" {
		add("memory.dir", "must not be empty")
	}

	switch cfg.Reasoning.Provider {
	case "http", "openai", "mock":
	default:
		add("reasoning.provider", "unsupported provider %q", cfg.Reasoning.Provider)
	}
	if cfg.Reasoning.Provider == "http" {
		switch cfg.Reasoning.Mode {
		case "get_query", "post_json", "openai":
		default:
			add("reasoning.mode", "unsupported mode %q", cfg.Reasoning.Mode)
		}
	}
	if cfg.Reasoning.Provider != "mock" && strings.TrimSpace(cfg.Reasoning.BaseURL) == "" {
		add("reasoning.base_url", "required for provider %q", cfg.Reasoning.Provider)
	}

	switch cfg.Tools.SearchBackend {
	case "llm", "duckduckgo":
	case "tavily":
		if strings.TrimSpace(cfg.Tools.TavilyAPIKey) == "" {
			add("tools.tavily_api_key", "required when search_backend is tavily")
		}
	default:
		add("tools.search_backend", "unsupported backend %q", cfg.Tools.SearchBackend)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "unsupported level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "unsupported format %q", cfg.Logging.Format)
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Exporter {
		case "otlp", "zipkin":
		default:
			add("tracing.exporter", "unsupported exporter %q", cfg.Tracing.Exporter)
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
