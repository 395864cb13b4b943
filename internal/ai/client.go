package ai

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vibe-assist/vibe-assist/internal/cost"
	"github.com/vibe-assist/vibe-assist/internal/journal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// BudgetTracker is the token budget consulted before and after every call
type BudgetTracker interface {
	CanProceed() (bool, string)
	RecordUsage(inputTokens, outputTokens int64) cost.BudgetStatus
}

// CallRecorder stores a record of every provider call
type CallRecorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Config holds reasoning client configuration
type Config struct {
	Model             Model         // required
	Retry             RetryConfig   // zero value means DefaultRetryConfig
	RequestsPerMinute int           // 0 = unlimited
	Budget            BudgetTracker // optional
	Journal           CallRecorder  // optional
	Logger            *zap.Logger   // optional
}

// Client is the guarded reasoning client shared by the analyzers
type Client struct {
	model   Model
	retry   RetryConfig
	breaker *CircuitBreaker
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	budget  BudgetTracker
	journal CallRecorder
	logger  *zap.Logger

	calls    atomic.Int64
	failures atomic.Int64
}

// NewClient wraps a Model with the call guards
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("%w: model is required", ErrNotInitialized)
	}

	retry := cfg.Retry
	if retry.Timeout == 0 {
		retry = DefaultRetryConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", cfg.Model.Provider()))

	c := &Client{
		model:   cfg.Model,
		retry:   retry,
		budget:  cfg.Budget,
		journal: cfg.Journal,
		logger:  logger,
	}

	if retry.CircuitBreakerEnabled {
		c.breaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
		c.breaker.logger = logger
		logger.Debug("circuit breaker initialized",
			zap.Int("failure_threshold", retry.FailureThreshold),
			zap.Int("success_threshold", retry.SuccessThreshold),
			zap.Duration("open_timeout", retry.OpenTimeout))
	}

	if retry.MaxConcurrentCalls > 0 {
		c.sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	if cfg.RequestsPerMinute > 0 {
		burst := cfg.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)
	}

	return c, nil
}

// Provider names the backend behind the client
func (c *Client) Provider() string {
	return c.model.Provider()
}

// Generate performs one guarded provider call. A nil client returns
// ErrNotInitialized so callers can hold an optional *Client.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, ErrNotInitialized
	}
	if req.Tier == "" {
		req.Tier = TierFast
	}

	if c.budget != nil {
		if ok, reason := c.budget.CanProceed(); !ok {
			return nil, fmt.Errorf("%s: %w: %s", req.Operation, ErrBudgetExceeded, reason)
		}
	}

	if c.limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
		err := c.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", req.Operation, err)
		}
	}

	c.calls.Add(1)
	start := time.Now()

	var resp *Response
	err := c.retryWithBackoff(ctx, req.Operation, func(attemptCtx context.Context) error {
		r, apiErr := c.model.Generate(attemptCtx, req)
		if apiErr != nil {
			return apiErr
		}
		resp = r
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		c.failures.Add(1)
	} else if c.budget != nil {
		c.budget.RecordUsage(resp.InputTokens, resp.OutputTokens)
	}
	c.record(ctx, req, resp, duration, err)

	if err != nil {
		return nil, err
	}

	c.logger.Debug("reasoning call complete",
		zap.String("operation", req.Operation),
		zap.String("model", resp.Model),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Duration("duration", duration))
	return resp, nil
}

// record journals a call. Journal failures are logged and never fail the call.
func (c *Client) record(ctx context.Context, req Request, resp *Response, duration time.Duration, callErr error) {
	if c.journal == nil {
		return
	}

	entry := journal.Entry{
		Operation:    req.Operation,
		Provider:     c.model.Provider(),
		Model:        c.model.ModelName(req.Tier),
		Schema:       req.Schema,
		PromptLength: len(req.Prompt),
		Prompt:       req.Prompt,
		Duration:     duration,
	}
	if resp != nil {
		entry.Model = resp.Model
		entry.Response = resp.Text
		entry.ResponseLength = len(resp.Text)
		entry.InputTokens = resp.InputTokens
		entry.OutputTokens = resp.OutputTokens
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}

	// The call may have been abandoned at shutdown; the record still goes in
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.journal.Record(recordCtx, entry); err != nil {
		c.logger.Warn("failed to journal reasoning call", zap.String("operation", req.Operation), zap.Error(err))
	}
}

// ClientStats summarises client activity for the health endpoint
type ClientStats struct {
	Provider     string `json:"provider"`
	FastModel    string `json:"fast_model"`
	DeepModel    string `json:"deep_model"`
	Calls        int64  `json:"calls"`
	Failures     int64  `json:"failures"`
	CircuitState string `json:"circuit_state"`
}

// Stats returns call counters and breaker state
func (c *Client) Stats() ClientStats {
	stats := ClientStats{
		Provider:     c.model.Provider(),
		FastModel:    c.model.ModelName(TierFast),
		DeepModel:    c.model.ModelName(TierDeep),
		Calls:        c.calls.Load(),
		Failures:     c.failures.Load(),
		CircuitState: "DISABLED",
	}
	if c.breaker != nil {
		stats.CircuitState = c.breaker.GetState().String()
	}
	return stats
}
