package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/igextract/cache"
	"github.com/use-agent/igextract/config"
	"github.com/use-agent/igextract/models"
)

type fakeExtractor struct {
	mu      sync.Mutex
	calls   atomic.Int32
	errs    map[string]error
	batches [][]string
}

func (f *fakeExtractor) Process(_ context.Context, url string) (*models.CanonicalEntity, error) {
	f.calls.Add(1)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	e := models.MinimalEntity(url, models.ContentProfile)
	e.Username = "alice"
	return e, nil
}

func (f *fakeExtractor) ProcessAll(ctx context.Context, urls []string) *models.RunResult {
	f.mu.Lock()
	f.batches = append(f.batches, urls)
	f.mu.Unlock()

	res := &models.RunResult{Data: []*models.CanonicalEntity{}, Errors: []models.URLError{}}
	for i, u := range urls {
		e, err := f.Process(ctx, u)
		if err != nil {
			res.Errors = append(res.Errors, models.URLError{URL: u, Index: i + 1, Code: models.CodeOf(err), Error: err.Error()})
			continue
		}
		res.Data = append(res.Data, e)
	}
	res.Success = len(res.Errors) == 0
	return res
}

func (f *fakeExtractor) StealthReport() models.StealthReport {
	return models.StealthReport{
		Enabled:     true,
		Fingerprint: models.FingerprintSummary{Archetype: "desktop-mid"},
		Network:     models.NetworkCounters{TotalRequests: 3, ConnectionErrors: 5},
	}
}

func newTestRouter(t *testing.T, keys ...string) (*gin.Engine, *fakeExtractor, *cache.Cache) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.Enabled = len(keys) > 0
	cfg.Auth.APIKeys = keys
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	cfg.Batch.MaxURLs = 3

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cc := cache.New(10, time.Hour)
	t.Cleanup(cc.Close)

	ex := &fakeExtractor{errs: map[string]error{}}
	return NewRouter(ctx, ex, cfg, cc, time.Now()), ex, cc
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth_NoAuth(t *testing.T) {
	r, _, _ := newTestRouter(t, "k1")
	w := do(t, r, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "desktop-mid", resp.Session.Archetype)
}

func TestAuth(t *testing.T) {
	r, _, _ := newTestRouter(t, "k1")
	body := models.ExtractRequest{URL: "https://www.instagram.com/alice/"}

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/api/v1/extract", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/api/v1/extract", body, "X-API-Key", "nope").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/extract", body, "X-API-Key", "k1").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/extract", body, "Authorization", "Bearer k1").Code)
}

func TestExtract_CacheHit(t *testing.T) {
	r, ex, _ := newTestRouter(t)
	body := models.ExtractRequest{URL: "https://www.instagram.com/alice/", MaxAge: 60_000}

	w := do(t, r, http.MethodPost, "/api/v1/extract", body)
	require.Equal(t, http.StatusOK, w.Code)
	var first models.ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "miss", first.CacheStatus)
	assert.Equal(t, "alice", first.Data.Username)

	body.URL = "https://www.instagram.com/alice"
	w = do(t, r, http.MethodPost, "/api/v1/extract", body)
	var second models.ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestExtract_Errors(t *testing.T) {
	r, ex, _ := newTestRouter(t)
	ex.errs["https://www.instagram.com/slow/"] = models.NewScrapeError(models.ErrCodeTimeout, "navigation failed", context.DeadlineExceeded)

	w := do(t, r, http.MethodPost, "/api/v1/extract", models.ExtractRequest{URL: "https://www.instagram.com/slow/"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var resp models.ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, models.ErrCodeTimeout, resp.Error.Code)

	w = do(t, r, http.MethodPost, "/api/v1/extract", map[string]string{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatch_Lifecycle(t *testing.T) {
	r, ex, cc := newTestRouter(t)
	ex.errs["https://www.instagram.com/broken/"] = models.NewScrapeError(models.ErrCodeNavigation, "navigation failed", nil)

	w := do(t, r, http.MethodPost, "/api/v1/batch/extract", models.BatchRequest{
		URLs: []string{"https://www.instagram.com/alice/", "https://www.instagram.com/broken/"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, 2, accepted.Total)

	var job models.BatchJob
	require.Eventually(t, func() bool {
		w := do(t, r, http.MethodGet, "/api/v1/batch/"+accepted.ID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		job = models.BatchJob{}
		_ = json.Unmarshal(w.Body.Bytes(), &job)
		return job.Status != models.BatchProcessing
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.BatchPartial, job.Status)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Errors, 1)

	_, hit := cc.Get(cache.Key("https://www.instagram.com/alice/"), 60_000)
	assert.True(t, hit, "batch results populate the cache")
}

func TestBatch_Validation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/batch/extract", models.BatchRequest{URLs: []string{"a", "b", "c", "d"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/batch/extract", map[string]any{"urls": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/batch/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStealth(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/api/v1/stealth", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rep models.StealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.True(t, rep.Enabled)
	assert.Equal(t, 3, rep.Network.TotalRequests)
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.Enabled = false
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRouter(ctx, &fakeExtractor{errs: map[string]error{}}, cfg, nil, time.Now())
	body := models.ExtractRequest{URL: "https://www.instagram.com/alice/"}

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/extract", body).Code)
	w := do(t, r, http.MethodPost, "/api/v1/extract", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
