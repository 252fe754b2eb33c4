package session

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/igextract/models"
)

// nonProfileSegments are first path segments that never name a user.
var nonProfileSegments = map[string]bool{
	"p":        true,
	"reel":     true,
	"reels":    true,
	"tv":       true,
	"explore":  true,
	"stories":  true,
	"accounts": true,
	"direct":   true,
}

// ProcessAll processes urls in order, then any author profiles discovered
// along the way. A failing URL is recorded and the run continues.
func (c *Coordinator) ProcessAll(ctx context.Context, urls []string) *models.RunResult {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	start := c.now()
	decodeBefore := c.interceptor.DecodeFailures()

	queue := append([]string(nil), urls...)
	known := make(map[string]bool)
	for _, u := range urls {
		if name := profileUsername(u); name != "" {
			known[name] = true
		}
	}

	result := &models.RunResult{
		Data:   []*models.CanonicalEntity{},
		Errors: []models.URLError{},
	}
	breakdown := make(map[models.ContentType]int)
	discovered := 0

	for i := 0; i < len(queue); i++ {
		if ctx.Err() != nil {
			for j := i; j < len(queue); j++ {
				result.Errors = append(result.Errors, urlError(queue[j], j, models.CategorizeError(ctx.Err(), "run canceled")))
			}
			break
		}

		u := queue[i]
		slog.Info("session: processing", "index", i+1, "total", len(queue), "url", u)

		entity, err := c.process(ctx, u)
		if err != nil {
			result.Errors = append(result.Errors, urlError(u, i, err))
			continue
		}
		result.Data = append(result.Data, entity)
		breakdown[entity.ContentType]++

		if next := c.discover(entity, known, discovered); next != "" {
			queue = append(queue, next)
			discovered++
			slog.Info("session: discovered profile", "username", entity.Username, "url", next)
		}
	}

	total := c.now().Sub(start).Seconds()
	processed := len(queue)

	summary := models.RunSummary{
		TotalOriginalURLs:           len(urls),
		AdditionalProfilesExtracted: discovered,
		TotalExtractions:            processed,
		SuccessfulExtractions:       len(result.Data),
		FailedExtractions:           len(result.Errors),
		TotalTime:                   round2(total),
		ContentTypeBreakdown:        breakdown,
		DecodeFailures:              int(c.interceptor.DecodeFailures() - decodeBefore),
	}
	if processed > 0 {
		summary.SuccessRate = round2(float64(len(result.Data)) / float64(processed) * 100)
		summary.AverageTimePerURL = round2(total / float64(processed))
	}

	result.Summary = summary
	result.Success = len(result.Errors) == 0
	report := c.StealthReport()
	result.StealthReport = &report

	slog.Info("session: run complete",
		"original", summary.TotalOriginalURLs,
		"discovered", discovered,
		"succeeded", summary.SuccessfulExtractions,
		"failed", summary.FailedExtractions,
		"elapsed", time.Duration(total*float64(time.Second)),
	)
	return result
}

// discover returns the profile URL to append for entity's author, or "".
func (c *Coordinator) discover(entity *models.CanonicalEntity, known map[string]bool, discovered int) string {
	d := c.cfg.Discovery
	if !d.Enabled || !entity.ContentType.IsPost() || entity.Username == "" {
		return ""
	}
	if discovered >= d.MaxProfiles {
		return ""
	}
	name := strings.ToLower(entity.Username)
	if known[name] {
		return ""
	}
	known[name] = true

	base := strings.TrimRight(d.BaseURL, "/")
	if base == "" {
		base = DefaultConfig().Discovery.BaseURL
	}
	return base + "/" + entity.Username + "/"
}

// profileUsername returns the lowercased username a profile URL names.
func profileUsername(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segs) != 1 || nonProfileSegments[strings.ToLower(segs[0])] {
		return ""
	}
	return strings.ToLower(segs[0])
}

func urlError(u string, i int, err error) models.URLError {
	return models.URLError{
		URL:   u,
		Index: i + 1,
		Code:  models.CodeOf(err),
		Error: err.Error(),
	}
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
