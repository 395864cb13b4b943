package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// ModelSonnet is the deep-tier Claude model
	ModelSonnet = "claude-sonnet-4-5-20250929"
	// ModelHaiku is the fast-tier Claude model
	ModelHaiku = "claude-3-5-haiku-20241022"

	defaultAnthropicMaxTokens = 1024
	jsonOnlyInstruction       = "Respond with a single JSON value and nothing else."
)

// AnthropicModel calls the Claude Messages API
type AnthropicModel struct {
	client    *anthropic.Client
	fastModel string
	deepModel string
}

// AnthropicConfig configures an AnthropicModel
type AnthropicConfig struct {
	APIKey    string // if empty, reads ANTHROPIC_API_KEY
	FastModel string // default: claude-3-5-haiku
	DeepModel string // default: claude-sonnet-4-5
	BaseURL   string // optional, for tests and proxies
}

// NewAnthropicModel creates a Claude-backed Model
func NewAnthropicModel(cfg AnthropicConfig) (*AnthropicModel, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not set", ErrNotInitialized)
		}
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	m := &AnthropicModel{client: &client, fastModel: cfg.FastModel, deepModel: cfg.DeepModel}
	if m.fastModel == "" {
		m.fastModel = ModelHaiku
	}
	if m.deepModel == "" {
		m.deepModel = ModelSonnet
	}
	return m, nil
}

// Provider implements Model
func (m *AnthropicModel) Provider() string { return "anthropic" }

// ModelName implements Model
func (m *AnthropicModel) ModelName(tier Tier) string {
	if tier == TierDeep {
		return m.deepModel
	}
	return m.fastModel
}

// Generate implements Model
func (m *AnthropicModel) Generate(ctx context.Context, req Request) (*Response, error) {
	model := m.ModelName(req.Tier)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)}
	if len(req.Image) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64(mimeType(req), base64.StdEncoding.EncodeToString(req.Image)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.JSON {
		params.System = []anthropic.TextBlockParam{{Text: jsonOnlyInstruction}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
