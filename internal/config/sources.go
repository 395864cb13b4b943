package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables
const (
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvAnthropicAPIKey   = "ANTHROPIC_API_KEY"
	EnvProvider          = "VIBE_PROVIDER"
	EnvModelFast         = "VIBE_MODEL_FAST"
	EnvModelDeep         = "VIBE_MODEL_DEEP"
	EnvHost              = "HOST"
	EnvPort              = "PORT"
	EnvFastInterval      = "VIBE_FAST_INTERVAL"
	EnvDeepInterval      = "VIBE_DEEP_INTERVAL"
	EnvScreenInterval    = "VIBE_SCREEN_INTERVAL"
	EnvSummaryInterval   = "VIBE_SUMMARY_INTERVAL"
	EnvRecalcInterval    = "VIBE_RECALC_INTERVAL"
	EnvReasoningTimeout  = "VIBE_REASONING_TIMEOUT"
	EnvSecurityPenalty   = "VIBE_SECURITY_PENALTY"
	EnvScreenshotDir     = "VIBE_SCREENSHOT_DIR"
	EnvDisplay           = "VIBE_DISPLAY"
	EnvJournal           = "VIBE_JOURNAL"
	EnvLogLevel          = "VIBE_LOG_LEVEL"
	EnvLogFormat         = "VIBE_LOG_FORMAT"
	EnvHourlyTokenBudget = "VIBE_HOURLY_TOKEN_BUDGET"
	EnvRequestsPerMinute = "VIBE_REQUESTS_PER_MINUTE"
	EnvWatchFiles        = "VIBE_WATCH_FILES"
	EnvAllowedOrigins    = "VIBE_ALLOWED_ORIGINS"
)

// LoadDotEnv loads the given .env files that exist. Variables already in
// the environment are kept.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := gotenv.Load(path); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}
	return nil
}

// fileConfig models <project>/.vibe-assist/config.yaml. Pointer fields
// distinguish "absent" from a zero value. API keys are deliberately not
// read from the project file.
type fileConfig struct {
	Host     *string `yaml:"host"`
	Port     *int    `yaml:"port"`
	Provider *string `yaml:"provider"`

	Models struct {
		Fast *string `yaml:"fast"`
		Deep *string `yaml:"deep"`
	} `yaml:"models"`

	Intervals struct {
		Fast    *string `yaml:"fast"`
		Deep    *string `yaml:"deep"`
		Screen  *string `yaml:"screen"`
		Summary *string `yaml:"summary"`
		Recalc  *string `yaml:"recalc"`
	} `yaml:"intervals"`

	ReasoningTimeout  *string  `yaml:"reasoning_timeout"`
	SecurityPenalty   *int     `yaml:"security_penalty"`
	ScreenshotDir     *string  `yaml:"screenshot_dir"`
	Display           *int     `yaml:"display"`
	Journal           *string  `yaml:"journal"`
	HourlyTokenBudget *int64   `yaml:"hourly_token_budget"`
	RequestsPerMinute *int     `yaml:"requests_per_minute"`
	WatchFiles        *bool    `yaml:"watch_files"`
	AllowedOrigins    []string `yaml:"allowed_origins"`

	Log struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`
}

// applyFile overlays the YAML file if it exists. Unknown keys are errors.
func (c *Config) applyFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}

	setString(&c.Host, fc.Host)
	setValue(&c.Port, fc.Port)
	setString(&c.Provider, fc.Provider)
	setString(&c.FastModel, fc.Models.Fast)
	setString(&c.DeepModel, fc.Models.Deep)
	setString(&c.ScreenshotDir, fc.ScreenshotDir)
	setValue(&c.Display, fc.Display)
	setString(&c.JournalPath, fc.Journal)
	setValue(&c.SecurityPenalty, fc.SecurityPenalty)
	setValue(&c.HourlyTokenBudget, fc.HourlyTokenBudget)
	setValue(&c.RequestsPerMinute, fc.RequestsPerMinute)
	setValue(&c.WatchFiles, fc.WatchFiles)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	if fc.AllowedOrigins != nil {
		c.AllowedOrigins = fc.AllowedOrigins
	}

	for _, d := range []struct {
		key   string
		value *string
		dest  *time.Duration
	}{
		{"intervals.fast", fc.Intervals.Fast, &c.FastInterval},
		{"intervals.deep", fc.Intervals.Deep, &c.DeepInterval},
		{"intervals.screen", fc.Intervals.Screen, &c.ScreenInterval},
		{"intervals.summary", fc.Intervals.Summary, &c.SummaryInterval},
		{"intervals.recalc", fc.Intervals.Recalc, &c.RecalcInterval},
		{"reasoning_timeout", fc.ReasoningTimeout, &c.ReasoningTimeout},
	} {
		if d.value == nil {
			continue
		}
		parsed, err := ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrInvalid, path, d.key, err)
		}
		*d.dest = parsed
	}
	return nil
}

// applyEnv overlays environment variables
func (c *Config) applyEnv() error {
	parseEnvString(EnvGeminiAPIKey, &c.GeminiAPIKey)
	parseEnvString(EnvAnthropicAPIKey, &c.AnthropicAPIKey)
	parseEnvString(EnvProvider, &c.Provider)
	parseEnvString(EnvModelFast, &c.FastModel)
	parseEnvString(EnvModelDeep, &c.DeepModel)
	parseEnvString(EnvHost, &c.Host)
	parseEnvString(EnvScreenshotDir, &c.ScreenshotDir)
	parseEnvString(EnvJournal, &c.JournalPath)
	parseEnvString(EnvLogLevel, &c.LogLevel)
	parseEnvString(EnvLogFormat, &c.LogFormat)
	c.Provider = strings.ToLower(c.Provider)
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)

	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		var origins []string
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		c.AllowedOrigins = origins
	}

	parsers := []func() error{
		func() error { return parseEnvInt(EnvPort, &c.Port) },
		func() error { return parseEnvInt(EnvDisplay, &c.Display) },
		func() error { return parseEnvInt(EnvSecurityPenalty, &c.SecurityPenalty) },
		func() error { return parseEnvInt(EnvRequestsPerMinute, &c.RequestsPerMinute) },
		func() error { return parseEnvInt64(EnvHourlyTokenBudget, &c.HourlyTokenBudget) },
		func() error { return parseEnvBool(EnvWatchFiles, &c.WatchFiles) },
		func() error { return parseEnvDuration(EnvFastInterval, &c.FastInterval) },
		func() error { return parseEnvDuration(EnvDeepInterval, &c.DeepInterval) },
		func() error { return parseEnvDuration(EnvScreenInterval, &c.ScreenInterval) },
		func() error { return parseEnvDuration(EnvSummaryInterval, &c.SummaryInterval) },
		func() error { return parseEnvDuration(EnvRecalcInterval, &c.RecalcInterval) },
		func() error { return parseEnvDuration(EnvReasoningTimeout, &c.ReasoningTimeout) },
	}
	for _, parse := range parsers {
		if err := parse(); err != nil {
			return err
		}
	}
	return nil
}

// ParseDuration accepts Go duration syntax ("90s", "2m") or a bare integer
// number of seconds. Negative values are rejected.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	var d time.Duration
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(secs) * time.Second
	} else {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		d = parsed
	}
	if d < 0 {
		return 0, fmt.Errorf("duration cannot be negative (got %s)", s)
	}
	return d, nil
}

func setString(dest *string, v *string) {
	if v != nil {
		*dest = *v
	}
}

func setValue[T any](dest *T, v *T) {
	if v != nil {
		*dest = *v
	}
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalid, key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt64 parses an int64 from an environment variable
func parseEnvInt64(key string, dest *int64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalid, key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalid, key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalid, key, err)
	}
	*dest = parsed
	return nil
}
