package ai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"google.golang.org/genai"
)

const (
	// ModelGeminiPro is the deep-tier Gemini model
	ModelGeminiPro = "gemini-2.5-pro"
	// ModelGeminiFlash is the fast-tier Gemini model
	ModelGeminiFlash = "gemini-2.5-flash"
)

// GeminiModel calls the Gemini generateContent API
type GeminiModel struct {
	client    *genai.Client
	fastModel string
	deepModel string
}

// GeminiConfig configures a GeminiModel
type GeminiConfig struct {
	APIKey     string // if empty, reads GEMINI_API_KEY
	FastModel  string // default: gemini-2.5-flash
	DeepModel  string // default: gemini-2.5-pro
	BaseURL    string // optional, for tests and proxies
	HTTPClient *http.Client
}

// NewGeminiModel creates a Gemini-backed Model
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrNotInitialized)
		}
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	m := &GeminiModel{client: client, fastModel: cfg.FastModel, deepModel: cfg.DeepModel}
	if m.fastModel == "" {
		m.fastModel = ModelGeminiFlash
	}
	if m.deepModel == "" {
		m.deepModel = ModelGeminiPro
	}
	return m, nil
}

// Provider implements Model
func (m *GeminiModel) Provider() string { return "gemini" }

// ModelName implements Model
func (m *GeminiModel) ModelName(tier Tier) string {
	if tier == TierDeep {
		return m.deepModel
	}
	return m.fastModel
}

// Generate implements Model
func (m *GeminiModel) Generate(ctx context.Context, req Request) (*Response, error) {
	model := m.ModelName(req.Tier)

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, mimeType(req)))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	result, err := m.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	resp := &Response{Text: result.Text(), Model: model}
	if result.UsageMetadata != nil {
		resp.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}
