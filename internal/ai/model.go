// Package ai is the reasoning client used by every analyzer. Provider SDKs
// sit behind the Model interface; Client wraps a Model with the call guards
// (timeout, circuit breaker, concurrency and rate limits, token budget) and
// journals every call. The judgement helpers turn provider text into typed
// results.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrNotInitialized is returned when no reasoning provider is configured
	ErrNotInitialized = errors.New("reasoning client not initialized")
	// ErrMalformedResponse is returned when provider output does not match the expected shape
	ErrMalformedResponse = errors.New("malformed reasoning response")
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrBudgetExceeded is returned when the hourly token budget is spent
	ErrBudgetExceeded = errors.New("token budget exceeded")
)

// Tier selects between the cheap low-latency model and the stronger one
type Tier string

const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

// Request is one provider call
type Request struct {
	Operation     string   // journal and log label, like "fast_path"
	Tier          Tier     // which model to use
	Prompt        string   // text instruction
	Image         []byte   // optional image attached after the prompt
	ImageMIMEType string   // defaults to image/png
	Temperature   *float64 // nil leaves the provider default
	MaxTokens     int      // 0 means the provider default
	JSON          bool     // ask the provider for application/json output
	Schema        string   // free-form schema hint recorded in the journal
}

// Response is the text a provider returned plus usage accounting
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Model is a reasoning provider
type Model interface {
	// Provider names the backend, like "gemini" or "anthropic"
	Provider() string
	// ModelName returns the model id used for a tier
	ModelName(tier Tier) string
	// Generate performs one call with no retries of its own
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Float is a helper for Request.Temperature
func Float(v float64) *float64 {
	return &v
}

func mimeType(req Request) string {
	if req.ImageMIMEType != "" {
		return req.ImageMIMEType
	}
	return "image/png"
}
