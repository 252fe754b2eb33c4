package models

// ExtractRequest is the payload for POST /api/v1/extract.
type ExtractRequest struct {
	// URL is the Instagram page to extract. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxAge allows a cached entity younger than this many milliseconds
	// to be returned. Zero bypasses the cache.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}
