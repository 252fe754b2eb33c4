package models

// RunResult is the outcome of one ProcessAll call.
type RunResult struct {
	// Success is true when no URL failed.
	Success bool `json:"success"`

	// Data holds one canonical entity per successfully processed URL,
	// in processing order (discovered profiles follow the original queue).
	Data []*CanonicalEntity `json:"data"`

	// Summary aggregates counts and timings for the run.
	Summary RunSummary `json:"summary"`

	// Errors lists every URL that failed, keyed by URL.
	Errors []URLError `json:"errors"`

	// StealthReport is the diagnostic snapshot taken after the run.
	StealthReport *StealthReport `json:"stealth_report,omitempty"`
}

// RunSummary is the run-level summary object.
type RunSummary struct {
	TotalOriginalURLs           int                 `json:"total_original_urls"`
	AdditionalProfilesExtracted int                 `json:"additional_profiles_extracted"`
	TotalExtractions            int                 `json:"total_extractions"`
	SuccessfulExtractions       int                 `json:"successful_extractions"`
	FailedExtractions           int                 `json:"failed_extractions"`
	SuccessRate                 float64             `json:"success_rate"`
	TotalTime                   float64             `json:"total_time"`
	AverageTimePerURL           float64             `json:"average_time_per_url"`
	ContentTypeBreakdown        map[ContentType]int `json:"content_type_breakdown"`

	// DecodeFailures counts intercepted responses that could not be decoded.
	DecodeFailures int `json:"decode_failures"`
}

// URLError is one entry of the run-level error list.
type URLError struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// StealthReport is a read-only snapshot of the anti-detection state.
type StealthReport struct {
	Enabled     bool               `json:"enabled"`
	Fingerprint FingerprintSummary `json:"fingerprint"`
	Behavior    BehaviorCounters   `json:"behavior"`
	Network     NetworkCounters    `json:"network"`
}

// FingerprintSummary describes the profile currently presented by the session.
type FingerprintSummary struct {
	Archetype           string `json:"archetype"`
	Platform            string `json:"platform"`
	UserAgent           string `json:"user_agent"`
	ScreenResolution    string `json:"screen_resolution"`
	Viewport            string `json:"viewport"`
	HardwareConcurrency int    `json:"hardware_concurrency"`
	DeviceMemoryGB      int    `json:"device_memory_gb"`
	Timezone            string `json:"timezone"`
	Locale              string `json:"locale"`
	Mobile              bool   `json:"mobile"`
}

// BehaviorCounters tracks simulated interaction volume.
type BehaviorCounters struct {
	TotalActions  int `json:"total_actions"`
	MouseSamples  int `json:"mouse_samples"`
	ScrollSamples int `json:"scroll_samples"`
	ClickSamples  int `json:"click_samples"`
}

// NetworkCounters tracks request pacing and failures.
type NetworkCounters struct {
	RequestCount          int     `json:"request_count"`
	TotalRequests         int     `json:"total_requests"`
	AverageSpacingSeconds float64 `json:"average_spacing_seconds"`
	ConnectionErrors      int     `json:"connection_errors"`
	Rotations             int     `json:"rotations"`
	ObservedRequests      int64   `json:"observed_requests"`
	DecodeFailures        int     `json:"decode_failures"`
}
