package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks how urgent an issue is
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities from 0 (Low) to 3 (Critical). Unknown values rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// ParseSeverity accepts any casing of a known severity name
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	}
	return "", false
}

// IssueType classifies an issue. The set is open: analyzers may introduce
// new values, the constants below are the ones the daemon produces itself.
type IssueType string

const (
	TypeSecurity            IssueType = "Security"
	TypeProactiveSuggestion IssueType = "Proactive Suggestion"
	TypeCharterDrift        IssueType = "Charter Drift"
)

// Issue is one judgement produced by an analyzer invocation
type Issue struct {
	ID            string    `json:"id"`
	Type          IssueType `json:"type"`
	Description   string    `json:"description"`
	Severity      Severity  `json:"severity"`
	FilePath      string    `json:"file_path,omitempty"`
	LineNumber    int       `json:"line_number,omitempty"`
	PriorityScore *float64  `json:"priority_score,omitempty"`
	Source        string    `json:"source,omitempty"` // analyzer that produced the issue
	DetectedAt    time.Time `json:"detected_at"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if strings.TrimSpace(string(i.Type)) == "" {
		return fmt.Errorf("type is required")
	}
	if strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %q", i.Severity)
	}
	if i.LineNumber < 0 {
		return fmt.Errorf("line_number cannot be negative (got %d)", i.LineNumber)
	}
	return nil
}

// FeedbackAction is a user disposition against an active issue
type FeedbackAction string

const (
	ActionDismiss       FeedbackAction = "dismiss"
	ActionFalsePositive FeedbackAction = "false_positive"
	ActionResolve       FeedbackAction = "resolve"
)

// IsValid checks if the action value is valid
func (a FeedbackAction) IsValid() bool {
	switch a {
	case ActionDismiss, ActionFalsePositive, ActionResolve:
		return true
	}
	return false
}

// FeedbackEntry records one dismiss or false_positive disposition
type FeedbackEntry struct {
	IssueIndex int            `json:"issue_index"`
	IssueID    string         `json:"issue_id"`
	Action     FeedbackAction `json:"action"`
	Note       string         `json:"note,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// UserFeedback holds advisory dispositions. Entries do not change the score
// until the score is explicitly recalculated.
type UserFeedback struct {
	DismissedIssues []FeedbackEntry `json:"dismissed_issues"`
	FalsePositives  []FeedbackEntry `json:"false_positives"`
}

// Snapshot is a point-in-time copy of the project state
type Snapshot struct {
	SecurityScore      int            `json:"security_score"`
	ActiveIssues       []Issue        `json:"active_issues"`
	ProjectCharter     map[string]any `json:"project_charter"`
	LastAnalyzedCommit string         `json:"last_analyzed_commit,omitempty"`
	UserFeedback       UserFeedback   `json:"user_feedback"`
	Revision           uint64         `json:"revision"`
}

// Commit is the metadata of one commit in the monitored repository
type Commit struct {
	ID        string    `json:"id"`
	Parents   []string  `json:"parents,omitempty"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortID returns the abbreviated commit id used in logs
func (c Commit) ShortID() string {
	return ShortID(c.ID)
}

// ShortID abbreviates a commit id to eight characters
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
