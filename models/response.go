package models

// ExtractResponse is the response for POST /api/v1/extract.
type ExtractResponse struct {
	// Success indicates whether the extraction completed without errors.
	Success bool `json:"success"`

	// Data is the canonical entity for the requested URL.
	Data *CanonicalEntity `json:"data,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent on a request.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds, queueing included.
	TotalMs int64 `json:"total_ms"`

	// ExtractionMs is the time the session spent on the URL.
	ExtractionMs int64 `json:"extraction_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "degraded"
	Uptime  string       `json:"uptime"`
	Session SessionStats `json:"session"`
	Version string       `json:"version"`
}

// SessionStats reports the browsing session's health counters.
type SessionStats struct {
	AntiDetection    bool   `json:"anti_detection"`
	Archetype        string `json:"archetype"`
	TotalRequests    int    `json:"total_requests"`
	ConnectionErrors int    `json:"connection_errors"`
	Rotations        int    `json:"rotations"`
	DecodeFailures   int    `json:"decode_failures"`
}
