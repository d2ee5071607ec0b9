package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
)

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		metrics.HTTPRequests.WithLabelValues(strings.ToUpper(c.Request.Method), route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		fields := map[string]interface{}{
			"method":     strings.ToUpper(c.Request.Method),
			"path":       c.Request.URL.Path,
			"status":     status,
			"durationMs": time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", fields)
		case status >= 400:
			log.Warn("HTTP request", fields)
		default:
			log.Debug("HTTP request", fields)
		}
	}
}
