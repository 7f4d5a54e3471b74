// Package vision provides the optional vision-analysis collaborator used to
// refine clip features. Analysis is best-effort: callers treat any failure
// as non-fatal and keep their defaults.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Analyzer answers a free-text analysis request about one media asset.
type Analyzer interface {
	Analyze(ctx context.Context, path, instructions string) (string, error)
}

// AnalyzeError carries the HTTP status of a failed analysis call.
type AnalyzeError struct {
	StatusCode int
	Body       string
}

func (e *AnalyzeError) Error() string {
	return fmt.Sprintf("vision analysis failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the failure is a server-side error.
// Client errors (4xx) are considered permanent.
func (e *AnalyzeError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type analyzeRequest struct {
	Path         string `json:"path"`
	Instructions string `json:"instructions"`
}

type analyzeResponse struct {
	Reply string `json:"reply"`
}

// HTTPClient talks to an external vision-analysis service over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Analyze(ctx context.Context, path, instructions string) (string, error) {
	body, err := json.Marshal(analyzeRequest{Path: path, Instructions: instructions})
	if err != nil {
		return "", fmt.Errorf("marshal analyze request: %w", err)
	}

	url := fmt.Sprintf("%s/api/vision/analyze", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		return "", &AnalyzeError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// Some providers reply with raw text rather than JSON.
		return string(respBody), nil
	}

	if c.logger != nil {
		c.logger.Debug("vision analysis complete", "path", path, "reply_bytes", len(parsed.Reply))
	}
	return parsed.Reply, nil
}

// StubAnalyzer returns a fixed reply or error, for wiring without a provider
// and for tests.
type StubAnalyzer struct {
	Reply string
	Err   error
}

func (s *StubAnalyzer) Analyze(ctx context.Context, path, instructions string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}
