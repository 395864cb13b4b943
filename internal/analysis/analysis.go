// Package analysis holds the three recurring analyzers (fast path, deep
// path, screen) and the one-shot project context initializer.
//
// Every analyzer reads what it needs, calls the reasoning client with no
// state lock held and then applies one mutation through the ProjectState
// API. Failures never leave a cycle: they are logged with the analyzer name
// and a preview of the input, and the cycle reports OutcomeFailed.
package analysis

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
)

// Analyzer is one recurring task driven by the scheduler. RunCycle must not
// be called concurrently with itself.
type Analyzer interface {
	// Name returns the identifier used in logs and stats
	Name() string

	// RunCycle performs one poll-judge-mutate cycle and never panics on
	// collaborator failures
	RunCycle(ctx context.Context) Outcome
}

// Outcome is the result of one analyzer cycle
type Outcome int

const (
	// OutcomeSkipped means no reasoning call was needed
	OutcomeSkipped Outcome = iota
	// OutcomeClean means the reasoning client found nothing
	OutcomeClean
	// OutcomeRecorded means the state was mutated
	OutcomeRecorded
	// OutcomeFailed means a source or reasoning failure degraded the cycle
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeClean:
		return "clean"
	case OutcomeRecorded:
		return "recorded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DiffSource yields the uncommitted changes of the monitored repository
type DiffSource interface {
	WorkingTreeDiff(ctx context.Context) (string, error)
}

// CommitSource yields commit history of the monitored repository
type CommitSource interface {
	Head(ctx context.Context) (string, error)
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	CommitsSince(ctx context.Context, cursor string) ([]string, error)
	Commit(ctx context.Context, id string) (types.Commit, error)
	CommitDiff(ctx context.Context, id string) (string, error)
}

// SecurityJudge judges a working-tree diff
type SecurityJudge interface {
	JudgeDiff(ctx context.Context, diff string) (ai.Judgement, error)
}

// CharterReviewer reviews one commit against the charter
type CharterReviewer interface {
	ReviewCommit(ctx context.Context, commit types.Commit, diff string, charter map[string]any) (ai.CharterUpdate, error)
}

// ScreenJudge looks for a proactive suggestion in a screen frame
type ScreenJudge interface {
	JudgeScreen(ctx context.Context, frame []byte, score, issueCount int) (ai.Judgement, error)
}

const previewChars = 200

// preview returns at most previewChars runes of s
func preview(s string) string {
	return truncate(s, previewChars, "...")
}

// truncate cuts s to at most n runes and appends suffix when it did
func truncate(s string, n int, suffix string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + suffix
}

// logFailure reports a degraded cycle. Missing providers are expected in
// some deployments and log at debug level.
// The analyzer name comes from the logger's own fields.
func logFailure(logger *zap.Logger, msg, input string, err error) {
	fields := []zap.Field{
		zap.String("input_preview", preview(input)),
		zap.Error(err),
	}
	if errors.Is(err, ai.ErrNotInitialized) {
		logger.Debug(msg, fields...)
		return
	}
	logger.Warn(msg, fields...)
}

// issueFromFinding builds the stored issue. Type and severity are fixed by
// the analyzer, location fields come from the finding.
func issueFromFinding(f *ai.Finding, issueType types.IssueType, severity types.Severity, source string) types.Issue {
	return types.Issue{
		Type:          issueType,
		Description:   f.Description,
		Severity:      severity,
		FilePath:      f.FilePath,
		LineNumber:    max(f.LineNumber, 0),
		PriorityScore: f.PriorityScore,
		Source:        source,
	}
}
