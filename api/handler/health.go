package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/vidurl/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status is "busy" while a batch holds the browser session.
func Health(runner Runner, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := runner.Stats()

		status := "healthy"
		if stats.Busy {
			status = "busy"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Session: stats,
			Version: Version,
		})
	}
}
