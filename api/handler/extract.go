// Package handler implements the HTTP handlers of the extraction API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/igextract/cache"
	"github.com/use-agent/igextract/models"
)

// Extractor is the session capability the handlers drive.
// *session.Coordinator satisfies it.
type Extractor interface {
	Process(ctx context.Context, url string) (*models.CanonicalEntity, error)
	ProcessAll(ctx context.Context, urls []string) *models.RunResult
	StealthReport() models.StealthReport
}

// Extract returns a handler for POST /api/v1/extract.
//
// Orchestration flow:
//  1. Parse & validate request.
//  2. Cache lookup when max_age is set.
//  3. Extractor.Process → canonical entity   (records extraction_ms)
//  4. Cache store, fill Timing, return 200.
func Extract(ex Extractor, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		cacheKey := cache.Key(req.URL)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				c.JSON(http.StatusOK, models.ExtractResponse{
					Success:     true,
					Data:        cached,
					CacheStatus: "hit",
					Timing:      models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()},
				})
				return
			}
		}

		// ── 3. Extract ──────────────────────────────────────────────
		start := time.Now()
		entity, err := ex.Process(c.Request.Context(), req.URL)
		timing := models.TimingInfo{
			TotalMs:      time.Since(totalStart).Milliseconds(),
			ExtractionMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			respondError(c, err, timing)
			return
		}

		// ── 4. Cache store + respond ────────────────────────────────
		resp := models.ExtractResponse{
			Success: true,
			Data:    entity,
			Timing:  timing,
		}
		if cc != nil {
			cc.Set(cacheKey, entity)
			if req.MaxAge > 0 {
				resp.CacheStatus = "miss"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ExtractResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}
