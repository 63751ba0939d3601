package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHealth implements the health check endpoint
func GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "trialworks-form-engine",
		"version": "1.0.0",
	})
}
