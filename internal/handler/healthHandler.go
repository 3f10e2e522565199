package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/gin-gonic/gin"
)

// Pings a dependency; nil entries are reported as disabled
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	analytics *service.AnalyticsService
	redis     Pinger
}

func NewHealthHandler(analytics *service.AnalyticsService, redis Pinger) *HealthHandler {
	return &HealthHandler{analytics: analytics, redis: redis}
}

// Handles GET /health. Degraded dependencies do not fail the check.
func (h *HealthHandler) Health(c *gin.Context) {
	redisStatus := "disabled"
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		redisStatus = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "unreachable"
		}
	}

	summary := h.analytics.Summary()

	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"databaseConnected": summary.DatabaseConnected,
		"redis":             redisStatus,
		"uptimeMinutes":     summary.UptimeMinutes,
		"currentPeriod":     summary.CurrentPeriod,
	})
}
