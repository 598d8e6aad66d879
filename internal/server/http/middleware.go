package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agentloop/internal/shared/logging"
)

// RequestLogger logs each request once it completes. Streaming endpoints are
// logged when the stream ends.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		format := "%s %s -> %d (%s)"
		args := []any{c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond)}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(format, args...)
		case status >= http.StatusBadRequest:
			logger.Warn(format, args...)
		default:
			logger.Debug(format, args...)
		}
	}
}

// JSONOnly rejects bodies that declare a non-JSON content type.
func JSONOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		contentType := c.GetHeader("Content-Type")
		if contentType != "" && !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, errorBody{
				Error:   "unsupported_media_type",
				Message: "Content-Type must be application/json",
			})
			return
		}
		c.Next()
	}
}
