package handler

import (
	"net/http"
	"strconv"

	"github.com/bazarkua/molexa-api/internal/publisher"
	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	service *service.AnalyticsService
	hub     *publisher.Hub
}

func NewAnalyticsHandler(service *service.AnalyticsService, hub *publisher.Hub) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, hub: hub}
}

// Handles GET /api/analytics/summary
func (h *AnalyticsHandler) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Summary())
}

// Handles GET /api/analytics/recent
func (h *AnalyticsHandler) GetRecent(c *gin.Context) {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	events := h.service.Recent(limit)

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// Handles GET /api/analytics/monthly/:period
func (h *AnalyticsHandler) GetMonthly(c *gin.Context) {
	summary, err := h.service.MonthlyReport(c.Request.Context(), c.Param("period"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
