package repl

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/vibe-assist/vibe-assist/internal/api"
	"github.com/vibe-assist/vibe-assist/internal/types"
)

const descriptionPreview = 60

func scoreColor(score int) string {
	c := color.New(color.FgGreen, color.Bold)
	switch {
	case score < 50:
		c = color.New(color.FgRed, color.Bold)
	case score < 80:
		c = color.New(color.FgYellow, color.Bold)
	}
	return c.Sprintf("%d/100", score)
}

func severityColor(sev types.Severity) func(a ...any) string {
	switch sev {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.SeverityHigh:
		return color.New(color.FgRed).SprintFunc()
	case types.SeverityMedium:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// PrintSnapshot renders the state summary
func PrintSnapshot(w io.Writer, snap *types.Snapshot) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s\n\n", cyan("=== Vibe Assist State ==="))
	fmt.Fprintf(w, "Security score: %s\n", scoreColor(snap.SecurityScore))
	fmt.Fprintf(w, "Active issues:  %d\n", len(snap.ActiveIssues))
	if snap.LastAnalyzedCommit != "" {
		fmt.Fprintf(w, "Last commit:    %s\n", types.ShortID(snap.LastAnalyzedCommit))
	} else {
		fmt.Fprintf(w, "Last commit:    %s\n", gray("none"))
	}
	fmt.Fprintf(w, "Feedback:       %d dismissed, %d false positives\n",
		len(snap.UserFeedback.DismissedIssues), len(snap.UserFeedback.FalsePositives))

	if name, ok := snap.ProjectCharter["project_name"].(string); ok && name != "" {
		fmt.Fprintf(w, "Project:        %s\n", name)
	}
	if len(snap.ProjectCharter) > 0 {
		keys := make([]string, 0, len(snap.ProjectCharter))
		for k := range snap.ProjectCharter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "Charter keys:   %v\n", keys)
	}

	if len(snap.ActiveIssues) > 0 {
		fmt.Fprintln(w)
		PrintIssues(w, snap.ActiveIssues)
	}
	fmt.Fprintln(w)
}

// PrintIssues lists issues with the index the feedback endpoint expects
func PrintIssues(w io.Writer, issues []types.Issue) {
	if len(issues) == 0 {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(w, "  %s\n", gray("No active issues"))
		return
	}
	for i, issue := range issues {
		sev := severityColor(issue.Severity)
		desc := []rune(issue.Description)
		text := string(desc)
		if len(desc) > descriptionPreview {
			text = string(desc[:descriptionPreview]) + "..."
		}
		fmt.Fprintf(w, "  %d. [%s] %s: %s\n", i, sev(string(issue.Severity)), issue.Type, text)
		if issue.FilePath != "" {
			loc := issue.FilePath
			if issue.LineNumber > 0 {
				loc = fmt.Sprintf("%s:%d", loc, issue.LineNumber)
			}
			fmt.Fprintf(w, "     %s\n", loc)
		}
	}
}

// PrintHealth renders the health endpoint
func PrintHealth(w io.Writer, h *api.HealthResponse) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "Status:    %s\n", green(h.Status))
	if h.ReasoningInitialized {
		fmt.Fprintf(w, "Reasoning: %s %s\n", green("✓"), h.Provider)
	} else {
		fmt.Fprintf(w, "Reasoning: %s not configured (set GEMINI_API_KEY or ANTHROPIC_API_KEY)\n", red("✗"))
	}
	if rs := h.Scheduler.Reasoning; rs != nil {
		fmt.Fprintf(w, "  Models:  fast=%s deep=%s\n", rs.FastModel, rs.DeepModel)
		fmt.Fprintf(w, "  Calls:   %d (%d failed), circuit %s\n", rs.Calls, rs.Failures, rs.CircuitState)
	}
	if b := h.Scheduler.Budget; b != nil {
		if b.HourlyTokenLimit > 0 {
			fmt.Fprintf(w, "Budget:    %s %d / %d tokens this hour\n", b.Status, b.HourlyTokensUsed, b.HourlyTokenLimit)
		} else {
			fmt.Fprintf(w, "Budget:    %d tokens this hour (unlimited)\n", b.HourlyTokensUsed)
		}
	}

	if len(h.Scheduler.Tasks) == 0 {
		return
	}
	names := make([]string, 0, len(h.Scheduler.Tasks))
	for name := range h.Scheduler.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Tasks:")
	for _, name := range names {
		t := h.Scheduler.Tasks[name]
		state := t.LastOutcome
		if t.Degraded {
			state = yellow("degraded")
		}
		fmt.Fprintf(w, "  %-10s cycles=%d recorded=%d failed=%d last=%s\n", name, t.Cycles, t.Recorded, t.Failed, state)
	}
}
