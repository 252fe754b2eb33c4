package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/igextract/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Degrades status once the session's connection errors reach maxErrors,
// the point at which the fingerprint is about to rotate.
func Health(ex Extractor, startTime time.Time, maxErrors int) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := ex.StealthReport()

		status := "healthy"
		if maxErrors > 0 && r.Network.ConnectionErrors >= maxErrors {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status: status,
			Uptime: time.Since(startTime).Round(time.Second).String(),
			Session: models.SessionStats{
				AntiDetection:    r.Enabled,
				Archetype:        r.Fingerprint.Archetype,
				TotalRequests:    r.Network.TotalRequests,
				ConnectionErrors: r.Network.ConnectionErrors,
				Rotations:        r.Network.Rotations,
				DecodeFailures:   r.Network.DecodeFailures,
			},
			Version: Version,
		})
	}
}

// Stealth returns a handler for GET /api/v1/stealth.
func Stealth(ex Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ex.StealthReport())
	}
}
