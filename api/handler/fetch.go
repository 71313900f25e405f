package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/vidurl/models"
)

// Runner resolves a batch of video identifiers. *fetcher.Fetcher satisfies it.
type Runner interface {
	Run(ctx context.Context, ids []string) *models.Result
	Stats() models.SessionStats
}

// Fetch returns a handler for POST /api/v1/fetch.
//
// The batch runs synchronously on the shared browser session; concurrent
// requests queue behind each other.
func Fetch(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.FetchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		start := time.Now()
		results := runner.Run(c.Request.Context(), req.IDs)

		c.JSON(http.StatusOK, models.FetchResponse{
			Success: true,
			Results: results,
			Total:   results.Len(),
			Failed:  results.Failed(),
			Timing: models.TimingInfo{
				TotalMs: time.Since(start).Milliseconds(),
			},
		})
	}
}
