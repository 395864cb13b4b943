package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(key, "")
	}
}

func TestNewModelSelection(t *testing.T) {
	clearProviderEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      ProviderConfig
		provider string
		wantErr  error
	}{
		{name: "auto without keys", cfg: ProviderConfig{}, wantErr: ErrNotInitialized},
		{name: "auto prefers gemini", cfg: ProviderConfig{GeminiAPIKey: "g", AnthropicAPIKey: "a"}, provider: "gemini"},
		{name: "auto falls back to anthropic", cfg: ProviderConfig{Provider: "AUTO", AnthropicAPIKey: "a"}, provider: "anthropic"},
		{name: "explicit anthropic", cfg: ProviderConfig{Provider: "anthropic", GeminiAPIKey: "g", AnthropicAPIKey: "a"}, provider: "anthropic"},
		{name: "explicit gemini without key", cfg: ProviderConfig{Provider: "gemini", AnthropicAPIKey: "a"}, wantErr: ErrNotInitialized},
		{name: "explicit anthropic without key", cfg: ProviderConfig{Provider: "anthropic"}, wantErr: ErrNotInitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(ctx, tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, m.Provider())
		})
	}
}

func TestNewModelUnknownProvider(t *testing.T) {
	_, err := NewModel(context.Background(), ProviderConfig{Provider: "openai", GeminiAPIKey: "g"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown reasoning provider "openai"`)
}

func TestNewModelOverridesModelNames(t *testing.T) {
	m, err := NewModel(context.Background(), ProviderConfig{
		Provider:        ProviderAnthropic,
		AnthropicAPIKey: "a",
		DeepModel:       "claude-opus-4-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ModelHaiku, m.ModelName(TierFast))
	assert.Equal(t, "claude-opus-4-1", m.ModelName(TierDeep))
}

func TestAnthropicModelGenerate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "None"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`)
	}))
	defer server.Close()

	m, err := NewAnthropicModel(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	resp, err := m.Generate(context.Background(), Request{
		Prompt:      "diff",
		Image:       []byte("png-bytes"),
		Temperature: Float(0),
		MaxTokens:   500,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "None", resp.Text)
	assert.Equal(t, ModelHaiku, resp.Model)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(3), resp.OutputTokens)

	assert.Equal(t, ModelHaiku, body["model"])
	assert.EqualValues(t, 500, body["max_tokens"])
	assert.Contains(t, body, "system")
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	content := messages[0].(map[string]any)["content"].([]any)
	assert.Len(t, content, 2, "text block plus image block")
}

func TestAnthropicModelGenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	m, err := NewAnthropicModel(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), Request{Prompt: "diff"})
	require.Error(t, err)
	assert.Equal(t, ErrorQuota, classifyError(err))
}

func TestGeminiModelGenerate(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"description\": \"Use a constant\"}"}]}}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 2}
		}`)
	}))
	defer server.Close()

	m, err := NewGeminiModel(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	resp, err := m.Generate(context.Background(), Request{Tier: TierDeep, Prompt: "commit", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"description": "Use a constant"}`, resp.Text)
	assert.Equal(t, ModelGeminiPro, resp.Model)
	assert.Equal(t, int64(7), resp.InputTokens)
	assert.Equal(t, int64(2), resp.OutputTokens)
	assert.True(t, strings.HasSuffix(path, ModelGeminiPro+":generateContent"), path)
}
