package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"agentloop/internal/agent/domain"
	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/llm"
	"agentloop/internal/memory"
	"agentloop/internal/observability"
	"agentloop/internal/parser"
	"agentloop/internal/server/app"
	"agentloop/internal/shared/config"
	"agentloop/internal/shared/logging"
	tokenutil "agentloop/internal/shared/token"
	"agentloop/internal/toolregistry"
	"agentloop/internal/tools"
	"agentloop/internal/tools/builtin"
	"agentloop/internal/workspace"
)

// Container holds every long-lived component of one process.
type Container struct {
	Config     config.RuntimeConfig
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Tracing    *observability.TracerProvider
	Memory     *memory.FileStore
	Workspaces *workspace.Manager
	Reasoning  agentports.ReasoningClient
	Tools      *toolregistry.Registry
	Dispatcher *tools.Dispatcher
	Engine     *domain.ReactEngine
	Events     *app.EventBroadcaster
	Manager    *app.TaskManager

	logger logging.Logger
}

// ContainerOption customizes BuildContainer.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	reasoning agentports.ReasoningClient
	counter   tokenutil.Counter
	version   string
	logger    logging.Logger
}

// WithReasoningClient replaces the configured reasoning client.
func WithReasoningClient(client agentports.ReasoningClient) ContainerOption {
	return func(o *containerOptions) { o.reasoning = client }
}

// WithTokenCounter replaces the tiktoken counter used for the context budget.
func WithTokenCounter(counter tokenutil.Counter) ContainerOption {
	return func(o *containerOptions) { o.counter = counter }
}

// WithVersion sets the service version reported to tracing.
func WithVersion(version string) ContainerOption {
	return func(o *containerOptions) { o.version = version }
}

// WithContainerLogger adds a logger that receives bootstrap messages next to
// the component logger.
func WithContainerLogger(logger logging.Logger) ContainerOption {
	return func(o *containerOptions) { o.logger = logger }
}

// BuildContainer wires storage, tools, the engine and the task manager from
// cfg. Callers must call Shutdown.
func BuildContainer(cfg config.RuntimeConfig, opts ...ContainerOption) (*Container, error) {
	options := containerOptions{version: "dev"}
	for _, opt := range opts {
		opt(&options)
	}
	logger := logging.Multi(logging.NewComponentLogger("Bootstrap"), options.logger)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{Config: cfg, logger: logger}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = observability.MustNewMetrics(c.Registry)

	tracing, err := observability.NewTracerProvider(cfg.Tracing, options.version)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	c.Tracing = tracing

	c.Memory = memory.NewFileStore(cfg.Memory.Dir, memory.Options{
		MaxEntries:    cfg.Memory.MaxEntries,
		MaxTextLength: cfg.Memory.MaxTextLength,
		DefaultLimit:  cfg.Memory.RetrieveLimit,
	})
	if err := c.Memory.EnsureSchema(context.Background()); err != nil {
		return nil, c.abort(fmt.Errorf("memory store: %w", err))
	}

	c.Workspaces, err = workspace.NewManager(cfg.Workspace.Root, cfg.Workspace.CleanupDelay)
	if err != nil {
		return nil, c.abort(fmt.Errorf("workspace manager: %w", err))
	}

	c.Reasoning = options.reasoning
	if c.Reasoning == nil {
		c.Reasoning, err = llm.New(cfg.Reasoning)
		if err != nil {
			return nil, c.abort(fmt.Errorf("reasoning client: %w", err))
		}
	}

	backend, err := searchBackend(cfg.Tools, c.Reasoning)
	if err != nil {
		return nil, c.abort(err)
	}
	c.Tools, err = toolregistry.NewRegistry(toolregistry.Config{
		TerminalTimeout: cfg.Tools.TerminalTimeout,
		SearchBackend:   backend,
		Memory:          c.Memory,
		Cache: toolregistry.CacheConfig{
			MaxSize: cfg.Tools.SearchCacheMax,
			TTL:     cfg.Tools.SearchCacheTTL,
		},
	})
	if err != nil {
		return nil, c.abort(fmt.Errorf("tool registry: %w", err))
	}
	c.Dispatcher = tools.NewDispatcher(c.Tools,
		tools.WithObserver(c.Metrics.ObserveToolCall),
		tools.WithLogger(logging.NewComponentLogger("ToolDispatcher")),
	)

	counter := options.counter
	if counter == nil {
		counter = tokenutil.Tiktoken()
	}
	c.Engine = domain.NewReactEngine(domain.ReactEngineConfig{
		MaxSteps:           cfg.Agent.MaxSteps,
		MaxRetriesPerError: cfg.SelfCorrection.MaxRetriesPerError,
		MemoryLimit:        cfg.Memory.RetrieveLimit,
		ContextTokenBudget: cfg.Agent.ContextTokenBudget,
		SystemPrompt:       cfg.Agent.SystemPrompt,
		Tools:              c.Tools.List(),
		FailureMarkers:     cfg.SelfCorrection.FailureMarkers,
		Parser:             parser.New(),
		TokenCounter:       counter,
		Tracer:             c.Tracing.Tracer(),
	})

	c.Events = app.NewEventBroadcaster(
		app.WithSubscriberBuffer(cfg.Server.EventBuffer),
		app.WithMaxHistory(cfg.Server.EventHistory),
		app.WithBroadcasterMetrics(c.Metrics),
	)

	c.Manager, err = app.NewTaskManager(app.TaskManagerDeps{
		Engine:     c.Engine,
		Reasoning:  c.Reasoning,
		Dispatcher: c.Dispatcher,
		Memory:     c.Memory,
		Workspaces: c.Workspaces,
		Store:      app.NewInMemoryTaskStore(),
		Admission: app.NewAdmissionController(app.AdmissionConfig{
			RateLimit:     cfg.Admission.RateLimit,
			RateWindow:    cfg.Admission.RateWindow,
			MaxConcurrent: cfg.Admission.MaxConcurrentTasks,
		}),
		Events: c.Events,
	},
		app.WithMetrics(c.Metrics),
		app.WithMemoryRetention(memory.RetentionPolicy{IdleHorizon: cfg.Memory.IdleHorizon}),
	)
	if err != nil {
		return nil, c.abort(err)
	}

	logger.Info("Container ready: tools=%s search=%s model=%s",
		strings.Join(c.Tools.Names(), ","), backend.Name(), c.Reasoning.Model())
	return c, nil
}

func searchBackend(cfg config.ToolsConfig, reasoning agentports.ReasoningClient) (builtin.SearchBackend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SearchBackend)) {
	case "", "llm":
		return builtin.LLMSearch{Client: reasoning}, nil
	case "tavily":
		return builtin.TavilySearch{APIKey: cfg.TavilyAPIKey}, nil
	case "duckduckgo":
		return builtin.DuckDuckGoSearch{}, nil
	default:
		return nil, fmt.Errorf("unsupported search backend %q", cfg.SearchBackend)
	}
}

func (c *Container) abort(err error) error {
	if c.Workspaces != nil {
		c.Workspaces.Close()
	}
	if c.Tracing != nil {
		if shutdownErr := c.Tracing.Shutdown(context.Background()); shutdownErr != nil {
			err = errors.Join(err, shutdownErr)
		}
	}
	return err
}

// Shutdown stops running tasks and flushes traces.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if c.Manager != nil {
		if err := c.Manager.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if c.Workspaces != nil {
		c.Workspaces.Close()
	}
	if c.Tracing != nil {
		if err := c.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
