package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vibe-assist/vibe-assist/internal/types"
)

func buildDiffPrompt(diff string) string {
	return fmt.Sprintf(`You are a security reviewer watching a developer's uncommitted changes.

Analyze the following code diff for critical, unambiguous security vulnerabilities only:
SQL injection, cross-site scripting (XSS), or exposed secrets and credentials.
Do not report style problems, missing tests, or speculative risks.

If a critical vulnerability is found, respond with ONLY a JSON object:
{"type": "Security", "description": "<what and where, one or two sentences>", "severity": "Critical", "file_path": "<path or empty>", "line_number": <line or 0>}

If nothing qualifies, respond with exactly: None

Diff:
%s
`, diff)
}

func buildScreenPrompt(score, issueCount int) string {
	return fmt.Sprintf(`Analyze this developer's screen image and identify if there are any clear coding opportunities.

Current project status: Security Score %d/100, %d active issues

Look for:
- Visible errors or warnings in a code editor or terminal
- Potential bugs in visible code
- Opportunities to refactor visible code

Only respond if you see something specific and actionable on screen. Keep the
description under 50 words and specific to what is visible.

If there is a suggestion, respond with ONLY a JSON object:
{"description": "<suggestion>", "file_path": "<file visible on screen or empty>"}

If nothing is notable, respond with exactly: None
`, score, issueCount)
}

func buildCommitPrompt(commit types.Commit, diff string, charter map[string]any) string {
	charterJSON := "{}"
	if len(charter) > 0 {
		if raw, err := json.MarshalIndent(charter, "", "  "); err == nil {
			charterJSON = string(raw)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Given the project charter:\n%s\n\n", charterJSON)
	fmt.Fprintf(&b, "And the following commit:\ncommit %s\nAuthor: %s <%s>\nDate: %s\n\n    %s\n\n",
		commit.ID, commit.Author, commit.Email, commit.Timestamp.Format("2006-01-02 15:04:05 -0700"),
		strings.ReplaceAll(strings.TrimSpace(commit.Message), "\n", "\n    "))
	fmt.Fprintf(&b, "Diff:\n%s\n\n", diff)
	b.WriteString(`Does this commit align with the project charter? Update the status of the charter items.
Respond with ONLY a JSON object representing the updated charter. Include an
"alignment" object: {"aligned": true|false, "notes": "<one sentence>"}.
If the charter is empty, analyze the commit and suggest which charter items it addresses.
`)
	return b.String()
}

func buildOraclePrompt(goal string, projectContext map[string]any) string {
	contextJSON := "{}"
	if len(projectContext) > 0 {
		if raw, err := json.Marshal(projectContext); err == nil {
			contextJSON = string(raw)
		}
	}

	return fmt.Sprintf(`As an expert prompt engineer, your task is to create a new, detailed prompt for another AI model.

User's Goal: %s
Project Context: %s

The user has provided a screenshot of their current work.
Based on all this information, generate the most effective prompt to help the user achieve their goal.
Make the prompt specific, actionable, and optimized for an AI assistant.
`, goal, contextJSON)
}

// ProjectFacts is what the context initializer gathered from the repository
type ProjectFacts struct {
	GitContext    string
	TechStack     []string
	FileStructure string
}

func buildProjectPrompt(facts ProjectFacts) string {
	tech := "Could not determine tech stack"
	if len(facts.TechStack) > 0 {
		tech = strings.Join(facts.TechStack, "\n")
	}

	return fmt.Sprintf(`Analyze this project and create a structured project context document.

Git Context:
%s

Technology Stack:
%s

File Structure (sample):
%s

Create a JSON response with:
1. "project_name": The likely project name
2. "description": A brief description of what this project does
3. "tech_stack": List of technologies used
4. "key_directories": Object mapping important directories to their purposes
5. "charter": List of project goals/objectives you can infer

Be concise and focus on what's actually visible in the codebase.
`, facts.GitContext, tech, facts.FileStructure)
}
