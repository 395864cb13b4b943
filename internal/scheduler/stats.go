package scheduler

import (
	"fmt"
	"time"

	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/cost"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
)

const (
	summaryIssues  = 5
	summaryPreview = 60
)

// Stats is the scheduler's view for the health endpoint
type Stats struct {
	Running   bool                 `json:"running"`
	Uptime    string               `json:"uptime,omitempty"`
	Tasks     map[string]TaskStats `json:"tasks"`
	Reasoning *ai.ClientStats      `json:"reasoning,omitempty"`
	Budget    *cost.BudgetStats    `json:"budget,omitempty"`
}

// Stats returns per-task counters plus reasoning and budget usage
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	running, startedAt := s.running, s.startedAt
	s.mu.Unlock()

	stats := Stats{Running: running, Tasks: make(map[string]TaskStats, len(s.tasks))}
	if running {
		stats.Uptime = time.Since(startedAt).Truncate(time.Second).String()
	}
	for _, t := range s.tasks {
		stats.Tasks[t.name] = t.snapshot()
	}
	if s.reasoning != nil {
		rs := s.reasoning.Stats()
		stats.Reasoning = &rs
	}
	if s.budget != nil {
		bs := s.budget.GetStats()
		stats.Budget = &bs
	}
	return stats
}

// logSummary writes the periodic state summary
func (s *Scheduler) logSummary() {
	snap := s.state.Snapshot()

	issues := snap.ActiveIssues
	if len(issues) > summaryIssues {
		issues = issues[len(issues)-summaryIssues:]
	}
	recent := make([]string, 0, len(issues))
	for _, issue := range issues {
		recent = append(recent, summarizeIssue(issue))
	}

	fields := []zap.Field{
		zap.Int("security_score", snap.SecurityScore),
		zap.Int("active_issues", len(snap.ActiveIssues)),
		zap.Strings("recent", recent),
	}
	if snap.LastAnalyzedCommit != "" {
		fields = append(fields, zap.String("last_analyzed_commit", types.ShortID(snap.LastAnalyzedCommit)))
	}
	s.logger.Info("state summary", fields...)
}

func summarizeIssue(issue types.Issue) string {
	desc := []rune(issue.Description)
	text := string(desc)
	if len(desc) > summaryPreview {
		text = string(desc[:summaryPreview]) + "..."
	}
	return fmt.Sprintf("[%s] %s: %s", issue.Severity, issue.Type, text)
}
