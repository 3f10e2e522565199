package handler

import (
	"net/http"

	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	auth      *service.AuthService
	analytics *service.AnalyticsService
}

func NewAdminHandler(auth *service.AuthService, analytics *service.AnalyticsService) *AdminHandler {
	return &AdminHandler{auth: auth, analytics: analytics}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Handles POST /admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		return
	}

	token, err := h.auth.Login(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Handles POST /admin/analytics/archive/:period
func (h *AdminHandler) Archive(c *gin.Context) {
	result, err := h.analytics.Archive(c.Request.Context(), c.Param("period"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Handles POST /admin/analytics/rollover
func (h *AdminHandler) Rollover(c *gin.Context) {
	results, err := h.analytics.Rollover(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if results == nil {
		results = []service.ArchiveResult{}
	}

	c.JSON(http.StatusOK, gin.H{"archived": results})
}
