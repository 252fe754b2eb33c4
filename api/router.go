package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/igextract/api/handler"
	"github.com/use-agent/igextract/api/middleware"
	"github.com/use-agent/igextract/cache"
	"github.com/use-agent/igextract/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// Background sweepers stop when ctx is done.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring checks always work.
func NewRouter(ctx context.Context, ex handler.Extractor, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(ex, startTime, cfg.Session.Pacing.MaxErrors))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.POST("/extract", handler.Extract(ex, cc))
	protected.GET("/stealth", handler.Stealth(ex))

	// Batch
	batches := handler.NewBatchStore(time.Hour)
	go batches.Run(ctx)
	protected.POST("/batch/extract", handler.PostBatch(ex, batches, cc, cfg.Batch.MaxURLs))
	protected.GET("/batch/:id", handler.GetBatch(batches))

	return r
}
