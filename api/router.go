package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/vidurl/api/handler"
	"github.com/use-agent/vidurl/api/middleware"
	"github.com/use-agent/vidurl/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(runner handler.Runner, batches *handler.BatchQueue, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(runner, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/fetch", handler.Fetch(runner))

	protected.POST("/batch", handler.PostBatch(batches))
	protected.GET("/batch/:id", handler.GetBatch(batches))

	return r
}
