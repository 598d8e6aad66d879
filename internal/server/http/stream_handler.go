package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/shared/logging"
)

const wsWriteTimeout = 10 * time.Second

// StreamHandler pushes task events over SSE or WebSocket.
type StreamHandler struct {
	service   TaskService
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	logger    logging.Logger
	errors    *APIHandler
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(service TaskService, heartbeat time.Duration, logger logging.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	logger = logging.OrNop(logger)
	return &StreamHandler{
		service:   service,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
		errors: NewAPIHandler(service, logger),
	}
}

// ServeSSE handles GET /api/tasks/:id/events.
func (h *StreamHandler) ServeSSE(c *gin.Context) {
	taskID := c.Param("id")
	sub, err := h.service.Subscribe(c.Request.Context(), taskID)
	if err != nil {
		h.errors.writeError(c, err)
		return
	}
	defer sub.Close()

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.errors.writeError(c, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("SSE stream opened for task %s", taskID)
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case event, open := <-sub.C:
			if !open {
				h.logger.Debug("SSE stream for task %s complete", taskID)
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				h.logger.Warn("Failed to write SSE event for task %s: %v", taskID, err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				h.logger.Debug("SSE heartbeat failed for task %s: %v", taskID, err)
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			h.logger.Debug("SSE client for task %s disconnected", taskID)
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event agentports.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

// ServeWebSocket handles GET /ws/tasks/:id. Each event is one JSON text
// message; the server closes the socket after the terminal event.
func (h *StreamHandler) ServeWebSocket(c *gin.Context) {
	taskID := c.Param("id")
	sub, err := h.service.Subscribe(c.Request.Context(), taskID)
	if err != nil {
		h.errors.writeError(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed for task %s: %v", taskID, err)
		return
	}
	defer conn.Close()

	// Reader goroutine drains control frames and notices client close.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-sub.C:
			if !open {
				deadline := time.Now().Add(wsWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task complete"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("Failed to write WebSocket event for task %s: %v", taskID, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-clientGone:
			h.logger.Debug("WebSocket client for task %s disconnected", taskID)
			return
		}
	}
}
