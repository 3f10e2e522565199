package middleware

import (
	"time"

	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/gin-gonic/gin"
)

// Access log. Client addresses are left out; analytics only keeps
// fingerprints of them.
func Logger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := []logger.Field{
			logger.String("request_id", c.GetString(RequestIDKey)),
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", statusCode),
			logger.Duration("latency", latency),
		}

		switch {
		case statusCode >= 500:
			log.Error("Request completed", fields...)
		case path == "/health" || path == "/metrics":
			log.Debug("Request completed", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}
