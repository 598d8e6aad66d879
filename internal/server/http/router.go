package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentloop/internal/server/app"
	"agentloop/internal/server/ports"
	"agentloop/internal/shared/logging"
)

const defaultHeartbeat = 30 * time.Second

// TaskService is the task manager surface the gateway needs.
type TaskService interface {
	Submit(ctx context.Context, prompt, sessionID string) (*ports.Task, error)
	Get(ctx context.Context, taskID string) (*ports.Task, error)
	List(ctx context.Context, sessionID string, limit, offset int) ([]*ports.Task, int, error)
	Cancel(ctx context.Context, taskID string) (*ports.Task, error)
	Subscribe(ctx context.Context, taskID string) (*app.Subscription, error)
}

// RouterConfig configures the gateway.
type RouterConfig struct {
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Version  string
	Logger   logging.Logger
}

// NewRouter creates the gin engine with every endpoint.
func NewRouter(service TaskService, cfg RouterConfig) *gin.Engine {
	logger := logging.OrNop(cfg.Logger)
	if logging.IsNil(cfg.Logger) {
		logger = logging.NewComponentLogger("Router")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	api := NewAPIHandler(service, logger)
	stream := NewStreamHandler(service, cfg.HeartbeatInterval, logger)
	health := newHealthHandler(cfg.Version)

	engine.GET("/health", health.handle)
	if cfg.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	tasks := engine.Group("/api/tasks")
	{
		tasks.POST("", JSONOnly(), api.CreateTask)
		tasks.GET("", api.ListTasks)
		tasks.GET("/:id", api.GetTask)
		tasks.POST("/:id/cancel", api.CancelTask)
		tasks.GET("/:id/events", stream.ServeSSE)
	}
	engine.GET("/ws/tasks/:id", stream.ServeWebSocket)

	return engine
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	config.AllowWebSockets = true
	return config
}

type healthHandler struct {
	version string
	started time.Time
}

func newHealthHandler(version string) *healthHandler {
	return &healthHandler{version: version, started: time.Now()}
}

func (h *healthHandler) handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
