package handler

import (
	"errors"
	"net/http"

	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/gin-gonic/gin"
)

// Maps service errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, service.ErrNotConfigured):
		status = http.StatusServiceUnavailable
		message = "Analytics storage not configured"
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
		message = "No data for this period"
	case errors.Is(err, service.ErrInvalidPeriod):
		status = http.StatusBadRequest
		message = "Invalid period, expected YYYY-MM"
	case errors.Is(err, service.ErrArchiveInProgress):
		status = http.StatusConflict
		message = "Archive already in progress for this period"
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		message = "Invalid credentials"
	}

	c.JSON(status, gin.H{"error": message})
}
