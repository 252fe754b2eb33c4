package models

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchRequest is the payload for POST /api/v1/batch/extract.
type BatchRequest struct {
	// URLs is processed in order as one run. Required.
	URLs []string `json:"urls" binding:"required,min=1,dive,required"`

	// WebhookURL receives a batch.completed event when the run ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch/extract.
type BatchResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Total  int          `json:"total"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// BatchJob tracks one asynchronous run. Result is set once the run ends.
type BatchJob struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Total     int        `json:"total"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt int64      `json:"created_at"` // unix timestamp
}

// StatusOf derives the final job state from a run result.
func StatusOf(r *RunResult) string {
	switch {
	case r == nil:
		return BatchProcessing
	case len(r.Errors) == 0:
		return BatchCompleted
	case len(r.Data) == 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}
