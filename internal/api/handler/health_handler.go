package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetHealth handles GET /health
// Reports per-dependency connectivity together with the service time
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "disconnected"
	if h.dbClient != nil && h.dbClient.HealthCheck(ctx) == nil {
		dbStatus = "connected"
	}

	redisStatus := "disconnected"
	if h.redisClient != nil && h.redisClient.HealthCheck(ctx) == nil {
		redisStatus = "connected"
	}

	rabbitStatus := "disconnected"
	if h.rabbitClient != nil && h.rabbitClient.IsConnected() {
		rabbitStatus = "connected"
	}

	status := http.StatusOK
	if dbStatus != "connected" || redisStatus != "connected" || rabbitStatus != "connected" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  h.version,
		"database": dbStatus,
		"redis":    redisStatus,
		"rabbitmq": rabbitStatus,
	})
}
