package middleware

import (
	"time"

	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/gin-gonic/gin"
)

type Tracker interface {
	Track(obs service.Observation) (models.RequestEvent, bool)
}

// Hands every completed request to the analytics pipeline. Recording is
// in-memory; durable writes are queued and never delay the response.
func TrackAnalytics(tracker Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		target := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			target += "?" + c.Request.URL.RawQuery
		}

		c.Next()

		tracker.Track(service.Observation{
			Method:     method,
			Path:       target,
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			StatusCode: c.Writer.Status(),
			Duration:   time.Since(start),
		})
	}
}
