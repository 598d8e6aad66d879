package config

import (
	"os"
	"time"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultServerAddr          = ":8080"
	DefaultMaxSteps            = 20
	DefaultMaxRetriesPerError  = 3
	DefaultReasoningAttempts   = 3
	DefaultRateLimit           = 20
	DefaultRateWindow          = 60 * time.Second
	DefaultMaxConcurrentTasks  = 10
	DefaultWorkspaceCleanup    = 5 * time.Minute
	DefaultMemoryIdleHorizon   = 24 * time.Hour
	DefaultMemoryMaxEntries    = 100
	DefaultMemoryMaxTextLength = 1000
	DefaultMemoryRetrieveLimit = 5
	DefaultContextTokenBudget  = 6000
	DefaultTerminalTimeout     = 60 * time.Second
	DefaultEventBuffer         = 100
	DefaultReasoningTimeout    = 120 * time.Second
)

// DefaultFailureMarkers lists output fragments that mark a tool result as
// failed even when the tool itself reported success.
var DefaultFailureMarkers = []string{
	"Traceback (most recent call last)",
	"SyntaxError",
	"NameError",
	"TypeError",
	"ModuleNotFoundError",
	"FileNotFoundError",
	"ImportError",
	"IndentationError",
	"AttributeError",
	"ValueError",
	"KeyError",
	"IndexError",
	"(exit code:",
	"command not found",
	"Permission denied",
	"No such file or directory",
}

// RuntimeConfig captures user-configurable settings shared across binaries.
type RuntimeConfig struct {
	Server         ServerConfig         `json:"server" yaml:"server" mapstructure:"server"`
	Reasoning      ReasoningConfig      `json:"reasoning" yaml:"reasoning" mapstructure:"reasoning"`
	Agent          AgentConfig          `json:"agent" yaml:"agent" mapstructure:"agent"`
	SelfCorrection SelfCorrectionConfig `json:"self_correction" yaml:"self_correction" mapstructure:"self_correction"`
	Admission      AdmissionConfig      `json:"admission" yaml:"admission" mapstructure:"admission"`
	Workspace      WorkspaceConfig      `json:"workspace" yaml:"workspace" mapstructure:"workspace"`
	Memory         MemoryConfig         `json:"memory" yaml:"memory" mapstructure:"memory"`
	Tools          ToolsConfig          `json:"tools" yaml:"tools" mapstructure:"tools"`
	Logging        LoggingConfig        `json:"logging" yaml:"logging" mapstructure:"logging"`
	Tracing        TracingConfig        `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr              string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	EventBuffer       int           `json:"event_buffer" yaml:"event_buffer" mapstructure:"event_buffer"`
	EventHistory      int           `json:"event_history" yaml:"event_history" mapstructure:"event_history"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	EnableMetrics     bool          `json:"enable_metrics" yaml:"enable_metrics" mapstructure:"enable_metrics"`
}

// ReasoningConfig configures the external completion service.
type ReasoningConfig struct {
	// Provider selects the client: "http" (generic endpoint), "openai" or "mock".
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	BaseURL  string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	// Mode selects the HTTP wire shape for the generic provider:
	// "get_query", "post_json" or "openai".
	Mode    string        `json:"mode" yaml:"mode" mapstructure:"mode"`
	Model   string        `json:"model" yaml:"model" mapstructure:"model"`
	APIKey  string        `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	MaxAttempts      int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBaseDelay   time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
	RateLimitRPS     float64       `json:"rate_limit_rps" yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst   int           `json:"rate_limit_burst" yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	BreakerThreshold int           `json:"breaker_threshold" yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `json:"breaker_timeout" yaml:"breaker_timeout" mapstructure:"breaker_timeout"`
}

// AgentConfig bounds the ReAct loop.
type AgentConfig struct {
	MaxSteps           int    `json:"max_steps" yaml:"max_steps" mapstructure:"max_steps"`
	ContextTokenBudget int    `json:"context_token_budget" yaml:"context_token_budget" mapstructure:"context_token_budget"`
	SystemPrompt       string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" mapstructure:"system_prompt"`
}

// SelfCorrectionConfig bounds corrective retries.
type SelfCorrectionConfig struct {
	MaxRetriesPerError int      `json:"max_retries_per_error" yaml:"max_retries_per_error" mapstructure:"max_retries_per_error"`
	FailureMarkers     []string `json:"failure_markers" yaml:"failure_markers" mapstructure:"failure_markers"`
}

// AdmissionConfig configures submission rate and concurrency ceilings.
type AdmissionConfig struct {
	RateLimit          int           `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	RateWindow         time.Duration `json:"rate_window" yaml:"rate_window" mapstructure:"rate_window"`
	MaxConcurrentTasks int           `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks"`
}

// WorkspaceConfig configures per-task directories.
type WorkspaceConfig struct {
	Root         string        `json:"root" yaml:"root" mapstructure:"root"`
	CleanupDelay time.Duration `json:"cleanup_delay" yaml:"cleanup_delay" mapstructure:"cleanup_delay"`
}

// MemoryConfig configures the session memory store.
type MemoryConfig struct {
	Dir           string        `json:"dir" yaml:"dir" mapstructure:"dir"`
	MaxEntries    int           `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`
	MaxTextLength int           `json:"max_text_length" yaml:"max_text_length" mapstructure:"max_text_length"`
	RetrieveLimit int           `json:"retrieve_limit" yaml:"retrieve_limit" mapstructure:"retrieve_limit"`
	IdleHorizon   time.Duration `json:"idle_horizon" yaml:"idle_horizon" mapstructure:"idle_horizon"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// ToolsConfig configures builtin tool behaviour.
type ToolsConfig struct {
	TerminalTimeout time.Duration `json:"terminal_timeout" yaml:"terminal_timeout" mapstructure:"terminal_timeout"`
	// SearchBackend is one of "llm", "tavily" or "duckduckgo".
	SearchBackend  string        `json:"search_backend" yaml:"search_backend" mapstructure:"search_backend"`
	TavilyAPIKey   string        `json:"tavily_api_key" yaml:"tavily_api_key" mapstructure:"tavily_api_key"`
	SearchCacheTTL time.Duration `json:"search_cache_ttl" yaml:"search_cache_ttl" mapstructure:"search_cache_ttl"`
	SearchCacheMax int           `json:"search_cache_max" yaml:"search_cache_max" mapstructure:"search_cache_max"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	File   string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Exporter     string  `json:"exporter" yaml:"exporter" mapstructure:"exporter"`
	Endpoint     string  `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	SampleRate   float64 `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	OTLPInsecure bool    `json:"otlp_insecure" yaml:"otlp_insecure" mapstructure:"otlp_insecure"`
}

// Metadata records where each effective value came from.
type Metadata struct {
	sources  map[string]ValueSource
	path     string
	loadedAt time.Time
}

// Sources returns a copy of the provenance map for JSON serialization.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for key, value := range m.sources {
		out[key] = value
	}
	return out
}

// Source returns the provenance of a dotted field name.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// Path is the config file that was read, empty when none was found.
func (m Metadata) Path() string {
	return m.path
}

func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Overrides conveys caller-specified values that should win over env/file sources.
type Overrides struct {
	ServerAddr       *string `json:"server_addr,omitempty"`
	ReasoningBaseURL *string `json:"reasoning_base_url,omitempty"`
	ReasoningMode    *string `json:"reasoning_mode,omitempty"`
	Provider         *string `json:"provider,omitempty"`
	LogLevel         *string `json:"log_level,omitempty"`
	WorkspaceRoot    *string `json:"workspace_root,omitempty"`
	MemoryDir        *string `json:"memory_dir,omitempty"`
}

// EnvLookup resolves an environment variable.
type EnvLookup func(string) (string, bool)

// DefaultEnvLookup reads from the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Option mutates how Load resolves configuration.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	configPath string
	overrides  Overrides
}

// WithEnv injects the environment lookup used by Load.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader injects the file reader used for the config file.
func WithFileReader(readFile func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = readFile }
}

// WithConfigPath selects an explicit config file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithOverrides applies caller overrides after file and env layers.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) { o.overrides = overrides }
}

// Default returns the built-in configuration.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Server: ServerConfig{
			Addr:              DefaultServerAddr,
			EventBuffer:       DefaultEventBuffer,
			EventHistory:      1000,
			HeartbeatInterval: 30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			EnableMetrics:     true,
		},
		Reasoning: ReasoningConfig{
			Provider:         "http",
			BaseURL:          "http://localhost:8081/complete",
			Mode:             "post_json",
			Timeout:          DefaultReasoningTimeout,
			MaxAttempts:      DefaultReasoningAttempts,
			RetryBaseDelay:   time.Second,
			RateLimitRPS:     2,
			RateLimitBurst:   4,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Agent: AgentConfig{
			MaxSteps:           DefaultMaxSteps,
			ContextTokenBudget: DefaultContextTokenBudget,
		},
		SelfCorrection: SelfCorrectionConfig{
			MaxRetriesPerError: DefaultMaxRetriesPerError,
			FailureMarkers:     append([]string(nil), DefaultFailureMarkers...),
		},
		Admission: AdmissionConfig{
			RateLimit:          DefaultRateLimit,
			RateWindow:         DefaultRateWindow,
			MaxConcurrentTasks: DefaultMaxConcurrentTasks,
		},
		Workspace: WorkspaceConfig{
			Root:         "./workspaces",
			CleanupDelay: DefaultWorkspaceCleanup,
		},
		Memory: MemoryConfig{
			Dir:           "./memory",
			MaxEntries:    DefaultMemoryMaxEntries,
			MaxTextLength: DefaultMemoryMaxTextLength,
			RetrieveLimit: DefaultMemoryRetrieveLimit,
			IdleHorizon:   DefaultMemoryIdleHorizon,
			SweepInterval: time.Hour,
		},
		Tools: ToolsConfig{
			TerminalTimeout: DefaultTerminalTimeout,
			SearchBackend:   "llm",
			SearchCacheTTL:  10 * time.Minute,
			SearchCacheMax:  128,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter:    "otlp",
			Endpoint:    "localhost:4318",
			ServiceName: "agentloop",
			SampleRate:  1.0,
		},
	}
}
