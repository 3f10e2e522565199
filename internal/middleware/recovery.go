package middleware

import (
	"fmt"
	"net/http"

	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/gin-gonic/gin"
)

func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("Panic while handling request",
					logger.String("request_id", c.GetString(RequestIDKey)),
					logger.String("panic", fmt.Sprint(err)))

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal Server Error",
				})
			}
		}()
		c.Next()
	}
}
