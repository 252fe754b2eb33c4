package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/igextract/models"
)

func main() {
	apiURL := os.Getenv("IGX_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("IGX_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "IGX_API_KEY is required")
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(apiURL, apiKey)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(apiURL, apiKey string) *server.MCPServer {
	s := server.NewMCPServer(
		"igextract",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	extractURLTool := mcp.NewTool("extract_url",
		mcp.WithDescription("Extract the canonical record (profile, article or video) for one Instagram URL. Uses a stealth browser session; a call can take up to a minute."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Instagram profile, post or reel URL"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached record younger than this many milliseconds"),
		),
	)
	s.AddTool(extractURLTool, handleExtractURL(apiURL, apiKey))

	batchExtractTool := mcp.NewTool("batch_extract",
		mcp.WithDescription("Extract records for several Instagram URLs as one session run. Post authors are followed to their profiles. Returns every record plus the run summary."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Instagram URLs, processed in order"),
		),
	)
	s.AddTool(batchExtractTool, handleBatchExtract(apiURL, apiKey))

	stealthTool := mcp.NewTool("stealth_report",
		mcp.WithDescription("Report the browsing session's fingerprint, behavior counters and network health."),
	)
	s.AddTool(stealthTool, handleStealthReport(apiURL, apiKey))

	return s
}

// apiDo sends a request to the igextract API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollBatch polls a batch job until its status is no longer "processing"
// or ctx is cancelled.
func pollBatch(ctx context.Context, client *http.Client, apiURL, apiKey, id string, every time.Duration) (*models.BatchJob, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/batch/"+id, apiKey, nil)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			var job models.BatchJob
			if err := json.Unmarshal(body, &job); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if job.Status != models.BatchProcessing {
				return &job, nil
			}
		}
	}
}

func handleExtractURL(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := models.ExtractRequest{
			URL:    url,
			MaxAge: int(request.GetFloat("max_age", 0)),
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/extract", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract request failed: %v", err)), nil
		}

		var resp models.ExtractResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			errMsg := "extraction failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Source: %s\nType: %s", resp.Data.URL, resp.Data.ContentType)
		if resp.CacheStatus != "" {
			fmt.Fprintf(&sb, " (cache %s)", resp.CacheStatus)
		}
		sb.WriteString("\n\n")
		sb.WriteString(prettyJSON(resp.Data))

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleBatchExtract(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		// POST to create batch job.
		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/batch/extract", apiKey,
			models.BatchRequest{URLs: urls})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var accepted models.BatchResponse
		if err := json.Unmarshal(respBody, &accepted); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}
		if accepted.ID == "" {
			errMsg := "batch job creation failed"
			if accepted.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", accepted.Error.Code, accepted.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		job, err := pollBatch(ctx, client, apiURL, apiKey, accepted.ID, 2*time.Second)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatBatch(job)), nil
	}
}

func handleStealthReport(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/stealth", apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stealth request failed: %v", err)), nil
		}

		var rep models.StealthReport
		if err := json.Unmarshal(respBody, &rep); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse stealth report: %v", err)), nil
		}
		return mcp.NewToolResultText(prettyJSON(rep)), nil
	}
}

// formatBatch renders a finished job: a header line, the summary, each
// record and each failed URL.
func formatBatch(job *models.BatchJob) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s (%d URLs)\n", job.ID, job.Status, job.Total)

	r := job.Result
	if r == nil {
		return sb.String()
	}
	s := r.Summary
	fmt.Fprintf(&sb, "Succeeded %d/%d (%.2f%%), %d discovered profiles, %.2fs total\n\n",
		s.SuccessfulExtractions, s.TotalExtractions, s.SuccessRate, s.AdditionalProfilesExtracted, s.TotalTime)

	for i, e := range r.Data {
		fmt.Fprintf(&sb, "--- [%d] %s (%s) ---\n%s\n\n", i+1, e.URL, e.ContentType, prettyJSON(e))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "--- FAILED %s: [%s] %s ---\n\n", e.URL, e.Code, e.Error)
	}
	return sb.String()
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
