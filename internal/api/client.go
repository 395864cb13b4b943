package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/types"
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// Client talks to a running daemon
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:8000).
// A nil httpClient uses one with a generous timeout for oracle calls.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultWriteTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// BaseURL returns the daemon address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// State fetches the current snapshot
func (c *Client) State(ctx context.Context) (*types.Snapshot, error) {
	var snap types.Snapshot
	if err := c.do(ctx, http.MethodGet, "/state", nil, "", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health fetches daemon health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, "", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Feedback records a disposition for the issue at index
func (c *Client) Feedback(ctx context.Context, index int, action types.FeedbackAction, note string) (*types.Snapshot, error) {
	body, err := json.Marshal(FeedbackRequest{IssueIndex: &index, Action: string(action), Note: note})
	if err != nil {
		return nil, err
	}
	var snap types.Snapshot
	if err := c.do(ctx, http.MethodPost, "/feedback", bytes.NewReader(body), "application/json", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ClearIssues drops every active issue
func (c *Client) ClearIssues(ctx context.Context) (*types.Snapshot, error) {
	var snap types.Snapshot
	if err := c.do(ctx, http.MethodPost, "/issues/clear", nil, "", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Recalculate recomputes the security score
func (c *Client) Recalculate(ctx context.Context) (*types.Snapshot, error) {
	var snap types.Snapshot
	if err := c.do(ctx, http.MethodPost, "/state/recalculate", nil, "", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GeneratePrompt uploads a goal and screenshot to the oracle endpoint
func (c *Client) GeneratePrompt(ctx context.Context, goal string, screenshot []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("goal", goal); err != nil {
		return "", err
	}
	if filename == "" {
		filename = "screenshot.png"
	}
	part, err := mw.CreateFormFile("screenshot", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(screenshot); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp PromptResponse
	if err := c.do(ctx, http.MethodPost, "/oracle/generate_prompt", &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.Prompt, nil
}

// InitializeContext asks the daemon to build the project context
func (c *Client) InitializeContext(ctx context.Context) (*analysis.ContextResult, error) {
	var result analysis.ContextResult
	if err := c.do(ctx, http.MethodPost, "/context/initialize", nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Wait polls /health until the daemon answers or ctx is done
func (c *Client) Wait(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := c.Health(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		_ = json.Unmarshal(raw, &e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
