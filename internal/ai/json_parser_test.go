package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFinding struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

func TestParse_DirectJSON(t *testing.T) {
	result := Parse[testFinding](`{"type": "Security", "description": "SQL injection", "severity": "Critical"}`)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Security", result.Data.Type)
	assert.Equal(t, "Critical", result.Data.Severity)
}

func TestParse_EmptyInput(t *testing.T) {
	result := Parse[testFinding]("   \n")

	assert.False(t, result.Success)
	assert.Equal(t, "empty input", result.Error)
}

func TestParse_CleanupStrategies(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "json fence",
			input: "```json\n{\"type\": \"Security\", \"description\": \"xss\", \"severity\": \"High\"}\n```",
		},
		{
			name:  "bare fence without newline",
			input: "```{\"type\": \"Security\", \"description\": \"xss\", \"severity\": \"High\"}```",
		},
		{
			name:  "fence after preamble",
			input: "Found one issue:\n```json\n{\"type\": \"Security\", \"description\": \"xss\", \"severity\": \"High\"}\n```\nFix it soon.",
		},
		{
			name:  "trailing comma",
			input: `{"type": "Security", "description": "xss", "severity": "High",}`,
		},
		{
			name: "comments",
			input: `{
				// finding
				"type": "Security", // inline
				/* block */ "description": "xss",
				"severity": "High"
			}`,
		},
		{
			name:  "unquoted keys",
			input: `{type: "Security", description: "xss", severity: "High"}`,
		},
		{
			name:  "prose around object",
			input: "Here is my judgement:\n\n{\"type\": \"Security\", \"description\": \"xss\", \"severity\": \"High\"}\n\nLet me know.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[testFinding](tt.input)
			require.True(t, result.Success, result.Error)
			assert.Equal(t, "xss", result.Data.Description)
			assert.Equal(t, "High", result.Data.Severity)
		})
	}
}

func TestParse_URLsSurviveCommentStripping(t *testing.T) {
	input := `{"description": "token posted to https://evil.example/collect", "severity": "Critical",}`

	result := Parse[testFinding](input)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "token posted to https://evil.example/collect", result.Data.Description)
}

func TestParse_ArrayInMixedContent(t *testing.T) {
	result := Parse[[]string]("Goals: [\"auth\", \"billing\"]\nDone.")

	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{"auth", "billing"}, result.Data)
}

func TestParse_DisableCleanup(t *testing.T) {
	result := Parse[testFinding]("```json\n{\"type\": \"Security\"}\n```", ParseOptions{DisableCleanup: true})
	assert.False(t, result.Success)
}

func TestParse_WithContext(t *testing.T) {
	result := Parse[testFinding]("not json at all", ParseOptions{Context: "fast-path judgement"})

	assert.False(t, result.Success)
	assert.True(t, strings.HasPrefix(result.Error, "fast-path judgement: "), result.Error)
	assert.Equal(t, "not json at all", result.OriginalText)
}

func TestParse_SizeLimit(t *testing.T) {
	big := `{"description": "` + strings.Repeat("a", 2048) + `"}`

	result := Parse[testFinding](big, ParseOptions{MaxInputSize: 1024})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "exceeds size limit")

	result = Parse[testFinding](big, ParseOptions{MaxInputSize: -1})
	assert.True(t, result.Success, result.Error)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"array stays whole", `[{"id": 1}, {"id": 2}]`, `[{"id": 1}, {"id": 2}]`},
		{"object in prose", `result: {"a": 1} end`, `{"a": 1}`},
		{"nothing", `no json here`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefghij", 5))

	// "é" is two bytes; cutting inside it must back up to the rune start
	assert.Equal(t, "ab...", truncate("abé", 3))
}
