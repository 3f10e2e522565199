package handler

import (
	"net/http"

	"github.com/bazarkua/molexa-api/internal/proxy"
	"github.com/gin-gonic/gin"
)

// Reports on the PubChem upstreams behind the passthrough routes
type SystemHandler struct {
	proxies map[string]*proxy.Proxy
}

func NewSystemHandler(proxies []*proxy.Proxy) *SystemHandler {
	byName := make(map[string]*proxy.Proxy, len(proxies))
	for _, p := range proxies {
		byName[p.Name()] = p
	}

	return &SystemHandler{proxies: byName}
}

// Handles GET /admin/upstreams
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := make(map[string]interface{}, len(h.proxies))

	for name, p := range h.proxies {
		statuses[name] = gin.H{
			"target":  p.Target(),
			"circuit": p.CircuitBreakerMetrics(),
		}
	}

	c.JSON(http.StatusOK, statuses)
}

// Handles POST /admin/upstreams/:name/reset
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	name := c.Param("name")

	p, exists := h.proxies[name]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Upstream not found",
		})
		return
	}

	p.ResetCircuitBreaker()

	c.JSON(http.StatusOK, gin.H{
		"message":  "Circuit breaker reset successfully",
		"upstream": name,
	})
}
