// Package config loads daemon configuration from defaults, an optional
// YAML file in the project, .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every configuration error
var ErrInvalid = errors.New("invalid configuration")

// Off disables path-valued settings such as the journal or screenshot archive
const Off = "off"

// ProjectDir is the per-project directory holding config, journal and context
const ProjectDir = ".vibe-assist"

// Config holds daemon configuration
type Config struct {
	// ProjectPath is the monitored repository (absolute)
	ProjectPath string

	// Host and Port are the HTTP bind address
	// Default: 0.0.0.0:8000
	Host string
	Port int

	// Provider selects the reasoning backend: auto, gemini or anthropic
	// Default: auto (Gemini when its key is set, then Anthropic)
	Provider        string
	GeminiAPIKey    string
	AnthropicAPIKey string

	// FastModel and DeepModel override the provider's default model ids
	FastModel string
	DeepModel string

	// Analyzer intervals
	// Defaults: fast 2s, deep 2s, screen 10s, summary 60s, recalc 0 (disabled)
	FastInterval    time.Duration
	DeepInterval    time.Duration
	ScreenInterval  time.Duration
	SummaryInterval time.Duration
	RecalcInterval  time.Duration

	// ReasoningTimeout bounds every provider call
	// Default: 60s
	ReasoningTimeout time.Duration

	// SecurityPenalty is deducted per fast-path detection
	// Default: 10, Range: 1-100
	SecurityPenalty int

	// ScreenshotDir archives captured frames; empty disables archiving
	// Default: <tmp>/vibe-assist-screenshots
	ScreenshotDir string

	// Display is the index of the captured display
	// Default: 0
	Display int

	// JournalPath is the SQLite reasoning journal; empty disables journaling
	// Default: <project>/.vibe-assist/reasoning.db
	JournalPath string

	// LogLevel is debug, info, warn or error; LogFormat is console or json
	LogLevel  string
	LogFormat string

	// HourlyTokenBudget caps input+output tokens per hour, 0 = unlimited
	HourlyTokenBudget int64

	// RequestsPerMinute caps provider calls, 0 = unlimited
	// Default: 30
	RequestsPerMinute int

	// WatchFiles enables file-change nudges for the fast path
	// Default: true
	WatchFiles bool

	// AllowedOrigins are the CORS origins of the dashboard
	AllowedOrigins []string
}

// DefaultAllowedOrigins are the local dashboard origins
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:3001",
}

// DefaultConfig returns the default configuration for a project
func DefaultConfig(projectPath string) *Config {
	return &Config{
		ProjectPath:       projectPath,
		Host:              "0.0.0.0",
		Port:              8000,
		Provider:          "auto",
		FastInterval:      2 * time.Second,
		DeepInterval:      2 * time.Second,
		ScreenInterval:    10 * time.Second,
		SummaryInterval:   60 * time.Second,
		RecalcInterval:    0,
		ReasoningTimeout:  60 * time.Second,
		SecurityPenalty:   10,
		ScreenshotDir:     filepath.Join(os.TempDir(), "vibe-assist-screenshots"),
		Display:           0,
		JournalPath:       filepath.Join(projectPath, ProjectDir, "reasoning.db"),
		LogLevel:          "info",
		LogFormat:         "console",
		HourlyTokenBudget: 0,
		RequestsPerMinute: 30,
		WatchFiles:        true,
		AllowedOrigins:    slices.Clone(DefaultAllowedOrigins),
	}
}

// Load builds the configuration for projectPath. Layers, lowest first:
// defaults, <project>/.vibe-assist/config.yaml, .env files (working
// directory, then project root, never overriding the environment), and
// environment variables. The result is validated.
func Load(projectPath string) (*Config, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: project path %q: %v", ErrInvalid, projectPath, err)
	}
	cfg := DefaultConfig(abs)

	if err := LoadDotEnv(".env", filepath.Join(abs, ".env")); err != nil {
		return nil, err
	}
	if err := cfg.applyFile(filepath.Join(abs, ProjectDir, "config.yaml")); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize resolves "off" path settings
func (c *Config) normalize() {
	if strings.EqualFold(c.JournalPath, Off) {
		c.JournalPath = ""
	}
	if strings.EqualFold(c.ScreenshotDir, Off) {
		c.ScreenshotDir = ""
	}
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.ProjectPath == "" {
		add("project path is required")
	}
	if strings.TrimSpace(c.Host) == "" {
		add("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		add("port must be between 1 and 65535 (got %d)", c.Port)
	}
	switch c.Provider {
	case "auto", "gemini", "anthropic":
	default:
		add("provider must be auto, gemini or anthropic (got %q)", c.Provider)
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"fast_interval", c.FastInterval},
		{"deep_interval", c.DeepInterval},
		{"screen_interval", c.ScreenInterval},
		{"summary_interval", c.SummaryInterval},
		{"reasoning_timeout", c.ReasoningTimeout},
	} {
		if d.value <= 0 {
			add("%s must be positive (got %v)", d.name, d.value)
		}
	}
	if c.RecalcInterval < 0 {
		add("recalc_interval cannot be negative (got %v)", c.RecalcInterval)
	}

	if c.SecurityPenalty < 1 || c.SecurityPenalty > 100 {
		add("security_penalty must be between 1 and 100 (got %d)", c.SecurityPenalty)
	}
	if c.Display < 0 {
		add("display cannot be negative (got %d)", c.Display)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		add("log level must be debug, info, warn or error (got %q)", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		add("log format must be console or json (got %q)", c.LogFormat)
	}
	if c.HourlyTokenBudget < 0 {
		add("hourly_token_budget cannot be negative (got %d)", c.HourlyTokenBudget)
	}
	if c.RequestsPerMinute < 0 {
		add("requests_per_minute cannot be negative (got %d)", c.RequestsPerMinute)
	}
	for _, origin := range c.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			add("allowed origins cannot contain empty entries")
			break
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
