// Package cost tracks reasoning token usage against an optional hourly budget.
package cost

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates usage past the alert threshold
	BudgetWarning
	// BudgetExceeded indicates the window's budget is spent
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText renders the status name in JSON
func (s BudgetStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name produced by MarshalText
func (s *BudgetStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "HEALTHY":
		*s = BudgetHealthy
	case "WARNING":
		*s = BudgetWarning
	case "EXCEEDED":
		*s = BudgetExceeded
	default:
		return fmt.Errorf("unknown budget status %q", text)
	}
	return nil
}

// Tracker accumulates token usage per window and enforces the limit
type Tracker struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	windowStart      time.Time
	hourlyTokensUsed int64
	totalTokensUsed  int64
	totalCalls       int64
	lastUpdated      time.Time
	warned           bool // warning already logged this window
}

// NewTracker creates a budget tracker. A nil logger is replaced with a no-op one.
func NewTracker(cfg *Config, logger *zap.Logger) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		config:      cfg,
		logger:      logger,
		now:         time.Now,
		windowStart: time.Now(),
	}, nil
}

// RecordUsage adds the tokens of one call and returns the resulting status
func (t *Tracker) RecordUsage(inputTokens, outputTokens int64) BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()

	tokens := inputTokens + outputTokens
	t.hourlyTokensUsed += tokens
	t.totalTokensUsed += tokens
	t.totalCalls++
	t.lastUpdated = t.now()

	status := t.statusLocked()
	switch {
	case status == BudgetExceeded:
		t.logger.Warn("hourly token budget exceeded, reasoning calls paused until the window resets",
			zap.Int64("used", t.hourlyTokensUsed),
			zap.Int64("limit", t.config.MaxTokensPerHour),
			zap.Time("window_reset", t.windowStart.Add(t.config.BudgetResetInterval)))
	case status == BudgetWarning && !t.warned:
		t.warned = true
		t.logger.Warn("hourly token budget nearly spent",
			zap.Int64("used", t.hourlyTokensUsed),
			zap.Int64("limit", t.config.MaxTokensPerHour))
	}
	return status
}

// CanProceed reports whether another call fits in the budget, with a reason when it does not
func (t *Tracker) CanProceed() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()
	if t.statusLocked() == BudgetExceeded {
		return false, fmt.Sprintf("hourly token budget exceeded (%d/%d tokens used)",
			t.hourlyTokensUsed, t.config.MaxTokensPerHour)
	}
	return true, ""
}

// BudgetStats contains budget statistics
type BudgetStats struct {
	Status           BudgetStatus `json:"status"`
	HourlyTokensUsed int64        `json:"hourly_tokens_used"`
	HourlyTokenLimit int64        `json:"hourly_token_limit"`
	TotalTokensUsed  int64        `json:"total_tokens_used"`
	TotalCalls       int64        `json:"total_calls"`
	WindowStartTime  time.Time    `json:"window_start_time"`
	LastUpdated      time.Time    `json:"last_updated,omitempty"`
}

// GetStats returns current budget statistics
func (t *Tracker) GetStats() BudgetStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()
	return BudgetStats{
		Status:           t.statusLocked(),
		HourlyTokensUsed: t.hourlyTokensUsed,
		HourlyTokenLimit: t.config.MaxTokensPerHour,
		TotalTokensUsed:  t.totalTokensUsed,
		TotalCalls:       t.totalCalls,
		WindowStartTime:  t.windowStart,
		LastUpdated:      t.lastUpdated,
	}
}

// checkAndResetWindow must be called with the lock held
func (t *Tracker) checkAndResetWindow() {
	now := t.now()
	if now.Sub(t.windowStart) < t.config.BudgetResetInterval {
		return
	}
	if t.hourlyTokensUsed > 0 {
		t.logger.Info("token budget window reset", zap.Int64("previous_window_tokens", t.hourlyTokensUsed))
	}
	t.windowStart = now
	t.hourlyTokensUsed = 0
	t.warned = false
}

// statusLocked must be called with the lock held
func (t *Tracker) statusLocked() BudgetStatus {
	if !t.config.Enabled() {
		return BudgetHealthy
	}
	if t.hourlyTokensUsed >= t.config.MaxTokensPerHour {
		return BudgetExceeded
	}
	if float64(t.hourlyTokensUsed) >= float64(t.config.MaxTokensPerHour)*t.config.AlertThreshold {
		return BudgetWarning
	}
	return BudgetHealthy
}
