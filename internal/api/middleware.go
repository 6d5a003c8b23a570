package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/logging"
)

// RequestLoggingMiddleware logs one line per request. Only the path is
// logged, never the query string: the websocket connect endpoint carries
// its session token there.
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		client := c.ClientIP()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Infof("Request: %s %s from %s, Status: %d, Latency: %v", method, path, client, status, latency)
	}
}
