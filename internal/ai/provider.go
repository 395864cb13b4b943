package ai

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by NewModel
const (
	ProviderAuto      = "auto"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig selects and configures a reasoning backend
type ProviderConfig struct {
	Provider        string // auto, gemini or anthropic
	GeminiAPIKey    string
	AnthropicAPIKey string
	FastModel       string // empty keeps the provider default
	DeepModel       string
}

// NewModel builds the configured provider. With "auto" it prefers Gemini,
// then Anthropic, and returns ErrNotInitialized when neither key is set.
func NewModel(ctx context.Context, cfg ProviderConfig) (Model, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderAuto {
		switch {
		case cfg.GeminiAPIKey != "":
			provider = ProviderGemini
		case cfg.AnthropicAPIKey != "":
			provider = ProviderAnthropic
		default:
			return nil, fmt.Errorf("%w: set GEMINI_API_KEY or ANTHROPIC_API_KEY", ErrNotInitialized)
		}
	}

	switch provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrNotInitialized)
		}
		return NewGeminiModel(ctx, GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			FastModel: cfg.FastModel,
			DeepModel: cfg.DeepModel,
		})
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not set", ErrNotInitialized)
		}
		return NewAnthropicModel(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			FastModel: cfg.FastModel,
			DeepModel: cfg.DeepModel,
		})
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q (want auto, gemini or anthropic)", cfg.Provider)
	}
}
