package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/receiptwise/alerting-backend-go/pkg/utils"
)

var startTime = time.Now()

// GetHealth returns service health including database connectivity
func (h *Handlers) GetHealth(c *gin.Context) {
	dbStatus := "healthy"
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	health := gin.H{
		"status":    "healthy",
		"service":   "alerting-backend",
		"database":  dbStatus,
		"uptime":    time.Since(startTime).String(),
		"feed":      h.hub.GetStats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if dbStatus != "healthy" {
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	utils.SendSuccess(c, health)
}
