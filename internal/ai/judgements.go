package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vibe-assist/vibe-assist/internal/types"
)

// Finding is the structured issue descriptor a provider returns
type Finding struct {
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	Severity      string   `json:"severity"`
	FilePath      string   `json:"file_path,omitempty"`
	LineNumber    int      `json:"line_number,omitempty"`
	PriorityScore *float64 `json:"priority_score,omitempty"`
}

// Judgement is either NoIssue (Finding == nil) or carries one Finding
type Judgement struct {
	Finding *Finding
}

// NoIssue is the judgement for "nothing to report"
var NoIssue = Judgement{}

// IsNoIssue reports whether the judgement found nothing
func (j Judgement) IsNoIssue() bool {
	return j.Finding == nil
}

// CharterUpdate is the charter object returned for a reviewed commit
type CharterUpdate map[string]any

// Aligned reports the provider's alignment verdict. Updates without an
// alignment object count as aligned.
func (u CharterUpdate) Aligned() (aligned bool, notes string) {
	alignment, ok := u["alignment"].(map[string]any)
	if !ok {
		return true, ""
	}
	notes, _ = alignment["notes"].(string)
	if v, ok := alignment["aligned"].(bool); ok {
		return v, notes
	}
	return true, notes
}

// ProjectDescription is the structured project context
type ProjectDescription struct {
	ProjectName    string            `json:"project_name"`
	Description    string            `json:"description"`
	TechStack      []string          `json:"tech_stack"`
	KeyDirectories map[string]string `json:"key_directories"`
	Charter        []string          `json:"charter"`
}

// UnmarshalJSON accepts key_directories as an object or as a list of names
func (p *ProjectDescription) UnmarshalJSON(data []byte) error {
	type plain ProjectDescription
	var raw struct {
		plain
		KeyDirectories json.RawMessage `json:"key_directories"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ProjectDescription(raw.plain)
	p.KeyDirectories = map[string]string{}

	if len(raw.KeyDirectories) == 0 || string(raw.KeyDirectories) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.KeyDirectories, &p.KeyDirectories); err == nil {
		return nil
	}
	var names []string
	if err := json.Unmarshal(raw.KeyDirectories, &names); err != nil {
		return fmt.Errorf("key_directories: %w", err)
	}
	for _, name := range names {
		p.KeyDirectories[name] = ""
	}
	return nil
}

// JudgeDiff asks for a security judgement over a working-tree diff
func (c *Client) JudgeDiff(ctx context.Context, diff string) (Judgement, error) {
	resp, err := c.Generate(ctx, Request{
		Operation:   "fast_path",
		Tier:        TierFast,
		Prompt:      buildDiffPrompt(diff),
		Temperature: Float(0),
		MaxTokens:   500,
		Schema:      "security_judgement",
	})
	if err != nil {
		return NoIssue, err
	}
	return parseJudgement(resp.Text, "security judgement")
}

// JudgeScreen asks for a proactive suggestion about a screen frame
func (c *Client) JudgeScreen(ctx context.Context, frame []byte, score, issueCount int) (Judgement, error) {
	resp, err := c.Generate(ctx, Request{
		Operation:   "screen",
		Tier:        TierFast,
		Prompt:      buildScreenPrompt(score, issueCount),
		Image:       frame,
		Temperature: Float(1),
		MaxTokens:   500,
		Schema:      "screen_suggestion",
	})
	if err != nil {
		return NoIssue, err
	}
	return parseJudgement(resp.Text, "screen suggestion")
}

// ReviewCommit asks for the charter updated with one commit
func (c *Client) ReviewCommit(ctx context.Context, commit types.Commit, diff string, charter map[string]any) (CharterUpdate, error) {
	resp, err := c.Generate(ctx, Request{
		Operation:   "deep_path",
		Tier:        TierDeep,
		Prompt:      buildCommitPrompt(commit, diff, charter),
		Temperature: Float(0.3),
		MaxTokens:   1000,
		JSON:        true,
		Schema:      "charter_update",
	})
	if err != nil {
		return nil, err
	}

	result := Parse[map[string]any](resp.Text, ParseOptions{Context: "charter update"})
	if !result.Success || result.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, result.Error)
	}
	return CharterUpdate(result.Data), nil
}

// GeneratePrompt turns a goal and a screenshot into a prompt for another assistant
func (c *Client) GeneratePrompt(ctx context.Context, goal string, screenshot []byte, projectContext map[string]any) (string, error) {
	resp, err := c.Generate(ctx, Request{
		Operation:   "oracle",
		Tier:        TierDeep,
		Prompt:      buildOraclePrompt(goal, projectContext),
		Image:       screenshot,
		Temperature: Float(0.7),
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrMalformedResponse)
	}
	return text, nil
}

// DescribeProject asks for a structured description of the repository
func (c *Client) DescribeProject(ctx context.Context, facts ProjectFacts) (*ProjectDescription, error) {
	resp, err := c.Generate(ctx, Request{
		Operation: "context_init",
		Tier:      TierFast,
		Prompt:    buildProjectPrompt(facts),
		MaxTokens: 5000,
		JSON:      true,
		Schema:    "project_context",
	})
	if err != nil {
		return nil, err
	}

	result := Parse[ProjectDescription](resp.Text, ParseOptions{Context: "project context"})
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, result.Error)
	}
	desc := result.Data
	return &desc, nil
}

// parseJudgement maps provider text onto the Judgement variant. "None" in
// any casing, optionally quoted or followed by a period, is NoIssue.
func parseJudgement(text, label string) (Judgement, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return NoIssue, fmt.Errorf("%w: %s: empty response", ErrMalformedResponse, label)
	}

	if isNoneAnswer(trimmed) {
		return NoIssue, nil
	}

	result := Parse[*Finding](trimmed, ParseOptions{Context: label})
	if !result.Success {
		return NoIssue, fmt.Errorf("%w: %s", ErrMalformedResponse, result.Error)
	}
	if result.Data == nil {
		return NoIssue, nil
	}

	finding := result.Data
	finding.Description = strings.TrimSpace(finding.Description)
	if finding.Description == "" {
		return NoIssue, fmt.Errorf("%w: %s: finding has no description", ErrMalformedResponse, label)
	}
	if isNoneAnswer(finding.Description) {
		return NoIssue, nil
	}
	return Judgement{Finding: finding}, nil
}

func isNoneAnswer(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'")
	s = strings.TrimSuffix(s, ".")
	return strings.EqualFold(strings.TrimSpace(s), "none")
}
