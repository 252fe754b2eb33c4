package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/igextract/cache"
	"github.com/use-agent/igextract/models"
	"github.com/use-agent/igextract/webhook"
)

// BatchStore holds in-flight and completed batch jobs. Jobs are replaced,
// never mutated, so readers always see a consistent snapshot.
type BatchStore struct {
	jobs sync.Map
	ttl  time.Duration
}

// NewBatchStore keeps finished jobs for ttl.
func NewBatchStore(ttl time.Duration) *BatchStore {
	return &BatchStore{ttl: ttl}
}

func (s *BatchStore) put(job *models.BatchJob) { s.jobs.Store(job.ID, job) }

// Get returns the current snapshot of a job.
func (s *BatchStore) Get(id string) (*models.BatchJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.BatchJob), true
}

// Sweep drops finished jobs created before now minus the TTL.
func (s *BatchStore) Sweep(now time.Time) {
	cutoff := now.Add(-s.ttl).Unix()
	s.jobs.Range(func(key, value any) bool {
		job := value.(*models.BatchJob)
		if job.Status != models.BatchProcessing && job.CreatedAt < cutoff {
			s.jobs.Delete(key)
		}
		return true
	})
}

// Run sweeps every 5 minutes until ctx is done.
func (s *BatchStore) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// PostBatch returns a handler for POST /api/v1/batch/extract.
// It validates the request, registers a job and runs the URLs as one
// session run in the background.
func PostBatch(ex Extractor, store *BatchStore, cc *cache.Cache, maxURLs int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.BatchResponse{
				Status: models.BatchFailed,
				Error:  &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		if maxURLs > 0 && len(req.URLs) > maxURLs {
			c.JSON(http.StatusBadRequest, models.BatchResponse{
				Status: models.BatchFailed,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: fmt.Sprintf("maximum %d URLs per batch", maxURLs),
				},
			})
			return
		}

		job := &models.BatchJob{
			ID:        "batch-" + uuid.NewString(),
			Status:    models.BatchProcessing,
			Total:     len(req.URLs),
			CreatedAt: time.Now().Unix(),
		}
		store.put(job)

		go runBatch(ex, store, cc, *job, req)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: job.Status,
			Total:  job.Total,
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(store *BatchStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.BatchResponse{
				ID:     c.Param("id"),
				Status: models.BatchFailed,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// runBatch processes the job's URLs, publishes the final snapshot and
// fires the completion webhook.
func runBatch(ex Extractor, store *BatchStore, cc *cache.Cache, job models.BatchJob, req models.BatchRequest) {
	result := ex.ProcessAll(context.Background(), req.URLs)

	if cc != nil {
		for _, e := range result.Data {
			cc.Set(cache.Key(e.URL), e)
		}
	}

	job.Result = result
	job.Status = models.StatusOf(result)
	store.put(&job)

	slog.Info("batch job finished",
		"id", job.ID,
		"status", job.Status,
		"succeeded", result.Summary.SuccessfulExtractions,
		"failed", result.Summary.FailedExtractions,
		"total", job.Total,
	)

	if req.WebhookURL != "" {
		webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      &job,
		}, nil)
	}
}
