package cost

import (
	"fmt"
	"time"
)

// Config holds token budgeting configuration
type Config struct {
	// MaxTokensPerHour is the maximum number of tokens (input + output) allowed per window
	// 0 = unlimited
	MaxTokensPerHour int64 `json:"max_tokens_per_hour" yaml:"max_tokens_per_hour"`

	// AlertThreshold is the fraction of the budget that triggers a warning
	// Default: 0.80
	AlertThreshold float64 `json:"alert_threshold" yaml:"alert_threshold"`

	// BudgetResetInterval is how long one budget window lasts
	// Default: 1 hour
	BudgetResetInterval time.Duration `json:"budget_reset_interval" yaml:"budget_reset_interval"`
}

// DefaultConfig returns an unlimited budget with hourly windows
func DefaultConfig() *Config {
	return &Config{
		MaxTokensPerHour:    0,
		AlertThreshold:      0.80,
		BudgetResetInterval: time.Hour,
	}
}

// Enabled reports whether any limit is configured
func (c *Config) Enabled() bool {
	return c.MaxTokensPerHour > 0
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.MaxTokensPerHour < 0 {
		return fmt.Errorf("max_tokens_per_hour cannot be negative (got %d)", c.MaxTokensPerHour)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1 {
		return fmt.Errorf("alert_threshold must be in (0, 1] (got %.2f)", c.AlertThreshold)
	}
	if c.BudgetResetInterval <= 0 {
		return fmt.Errorf("budget_reset_interval must be positive (got %v)", c.BudgetResetInterval)
	}
	return nil
}
