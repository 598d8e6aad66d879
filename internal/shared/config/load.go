package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "AGENTLOOP_"

// Load resolves the runtime configuration: defaults, then the config file,
// then AGENTLOOP_* environment variables, then caller overrides.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	cfg := Default()

	if err := applyFile(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	applyOverrides(&cfg, &meta, options.overrides)
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	return cfg, meta, nil
}

func resolveConfigPath(options loadOptions) string {
	if path := strings.TrimSpace(options.configPath); path != "" {
		return path
	}
	if value, ok := options.envLookup(envPrefix + "CONFIG"); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return ""
}

func applyFile(cfg *RuntimeConfig, meta *Metadata, options loadOptions) error {
	path := resolveConfigPath(options)
	if path == "" {
		return nil
	}
	data, err := options.readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	meta.path = path
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	v := viper.New()
	v.SetConfigType(configType(path))
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	// Lists replace the defaults instead of merging element-wise.
	if v.IsSet("self_correction.failure_markers") {
		cfg.SelfCorrection.FailureMarkers = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}
	for _, key := range v.AllKeys() {
		meta.sources[key] = SourceFile
	}
	return nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	get := func(name string) (string, bool) {
		value, ok := lookup(envPrefix + name)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}

	stringVars := []struct {
		env    string
		field  string
		target *string
	}{
		{"SERVER_ADDR", "server.addr", &cfg.Server.Addr},
		{"REASONING_PROVIDER", "reasoning.provider", &cfg.Reasoning.Provider},
		{"REASONING_BASE_URL", "reasoning.base_url", &cfg.Reasoning.BaseURL},
		{"REASONING_MODE", "reasoning.mode", &cfg.Reasoning.Mode},
		{"REASONING_MODEL", "reasoning.model", &cfg.Reasoning.Model},
		{"REASONING_API_KEY", "reasoning.api_key", &cfg.Reasoning.APIKey},
		{"WORKSPACE_ROOT", "workspace.root", &cfg.Workspace.Root},
		{"MEMORY_DIR", "memory.dir", &cfg.Memory.Dir},
		{"SEARCH_BACKEND", "tools.search_backend", &cfg.Tools.SearchBackend},
		{"LOG_LEVEL", "logging.level", &cfg.Logging.Level},
		{"LOG_FORMAT", "logging.format", &cfg.Logging.Format},
		{"LOG_FILE", "logging.file", &cfg.Logging.File},
		{"TRACING_EXPORTER", "tracing.exporter", &cfg.Tracing.Exporter},
		{"TRACING_ENDPOINT", "tracing.endpoint", &cfg.Tracing.Endpoint},
	}
	for _, item := range stringVars {
		if value, ok := get(item.env); ok {
			*item.target = value
			meta.sources[item.field] = SourceEnv
		}
	}
	if value, ok := lookup("TAVILY_API_KEY"); ok && value != "" {
		cfg.Tools.TavilyAPIKey = value
		meta.sources["tools.tavily_api_key"] = SourceEnv
	}

	ints := []struct {
		env    string
		field  string
		target *int
	}{
		{"MAX_STEPS", "agent.max_steps", &cfg.Agent.MaxSteps},
		{"MAX_RETRIES_PER_ERROR", "self_correction.max_retries_per_error", &cfg.SelfCorrection.MaxRetriesPerError},
		{"RATE_LIMIT", "admission.rate_limit", &cfg.Admission.RateLimit},
		{"MAX_CONCURRENT_TASKS", "admission.max_concurrent_tasks", &cfg.Admission.MaxConcurrentTasks},
	}
	for _, item := range ints {
		value, ok := get(item.env)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, item.env, err)
		}
		*item.target = parsed
		meta.sources[item.field] = SourceEnv
	}

	durations := []struct {
		env    string
		field  string
		target *time.Duration
	}{
		{"WORKSPACE_CLEANUP_DELAY", "workspace.cleanup_delay", &cfg.Workspace.CleanupDelay},
		{"MEMORY_IDLE_HORIZON", "memory.idle_horizon", &cfg.Memory.IdleHorizon},
		{"REASONING_TIMEOUT", "reasoning.timeout", &cfg.Reasoning.Timeout},
	}
	for _, item := range durations {
		value, ok := get(item.env)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, item.env, err)
		}
		*item.target = parsed
		meta.sources[item.field] = SourceEnv
	}

	if value, ok := get("TRACING_ENABLED"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parse %sTRACING_ENABLED: %w", envPrefix, err)
		}
		cfg.Tracing.Enabled = parsed
		meta.sources["tracing.enabled"] = SourceEnv
	}
	if value, ok := get("FAILURE_MARKERS"); ok {
		cfg.SelfCorrection.FailureMarkers = splitList(value)
		meta.sources["self_correction.failure_markers"] = SourceEnv
	}
	return nil
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides Overrides) {
	set := func(target *string, value *string, field string) {
		if value == nil {
			return
		}
		*target = *value
		meta.sources[field] = SourceOverride
	}
	set(&cfg.Server.Addr, overrides.ServerAddr, "server.addr")
	set(&cfg.Reasoning.BaseURL, overrides.ReasoningBaseURL, "reasoning.base_url")
	set(&cfg.Reasoning.Mode, overrides.ReasoningMode, "reasoning.mode")
	set(&cfg.Reasoning.Provider, overrides.Provider, "reasoning.provider")
	set(&cfg.Logging.Level, overrides.LogLevel, "logging.level")
	set(&cfg.Workspace.Root, overrides.WorkspaceRoot, "workspace.root")
	set(&cfg.Memory.Dir, overrides.MemoryDir, "memory.dir")
}

func normalize(cfg *RuntimeConfig) {
	cfg.Reasoning.Provider = strings.ToLower(strings.TrimSpace(cfg.Reasoning.Provider))
	cfg.Reasoning.Mode = strings.ToLower(strings.TrimSpace(cfg.Reasoning.Mode))
	cfg.Tools.SearchBackend = strings.ToLower(strings.TrimSpace(cfg.Tools.SearchBackend))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Tracing.Exporter = strings.ToLower(strings.TrimSpace(cfg.Tracing.Exporter))

	markers := cfg.SelfCorrection.FailureMarkers[:0]
	for _, marker := range cfg.SelfCorrection.FailureMarkers {
		if trimmed := strings.TrimSpace(marker); trimmed != "" {
			markers = append(markers, trimmed)
		}
	}
	cfg.SelfCorrection.FailureMarkers = markers
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
