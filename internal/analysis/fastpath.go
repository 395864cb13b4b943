package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/vibe-assist/vibe-assist/internal/git"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
)

const (
	// DefaultSecurityPenalty is deducted per fast-path detection
	DefaultSecurityPenalty = 10
	// DefaultMaxDiffChars bounds the diff sent to the reasoning client
	DefaultMaxDiffChars = 20000
)

// FastPathConfig holds fast-path dependencies
type FastPathConfig struct {
	Diffs        DiffSource          // required
	Judge        SecurityJudge       // required
	State        *state.ProjectState // required
	Penalty      int                 // default DefaultSecurityPenalty
	MaxDiffChars int                 // default DefaultMaxDiffChars
	Logger       *zap.Logger         // optional
}

// statusSource is implemented by diff sources that can also list the
// changed files
type statusSource interface {
	Status(ctx context.Context) (*git.Status, error)
}

// FastPath triages uncommitted changes for critical security problems
type FastPath struct {
	diffs        DiffSource
	judge        SecurityJudge
	state        *state.ProjectState
	penalty      int
	maxDiffChars int
	logger       *zap.Logger

	// lastDiff is the last diff that was judged successfully
	lastDiff string
}

// NewFastPath creates a fast-path analyzer
func NewFastPath(cfg *FastPathConfig) (*FastPath, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Diffs == nil {
		return nil, fmt.Errorf("diff source is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("security judge is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state is required")
	}
	if cfg.Penalty < 0 {
		return nil, fmt.Errorf("penalty cannot be negative (got %d)", cfg.Penalty)
	}

	f := &FastPath{
		diffs:        cfg.Diffs,
		judge:        cfg.Judge,
		state:        cfg.State,
		penalty:      cfg.Penalty,
		maxDiffChars: cfg.MaxDiffChars,
		logger:       cfg.Logger,
	}
	if f.penalty == 0 {
		f.penalty = DefaultSecurityPenalty
	}
	if f.maxDiffChars <= 0 {
		f.maxDiffChars = DefaultMaxDiffChars
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.logger = f.logger.With(zap.String("analyzer", f.Name()))
	return f, nil
}

// Name implements Analyzer
func (f *FastPath) Name() string { return "fast_path" }

// RunCycle implements Analyzer. Empty and unchanged diffs never reach the
// reasoning client. A failed call keeps the previous baseline so the same
// diff is retried next cycle.
func (f *FastPath) RunCycle(ctx context.Context) Outcome {
	diff, err := f.diffs.WorkingTreeDiff(ctx)
	if err != nil {
		logFailure(f.logger, "failed to read working tree diff", "", err)
		return OutcomeFailed
	}

	if strings.TrimSpace(diff) == "" {
		if f.lastDiff != "" {
			f.logger.Info("uncommitted changes cleared")
			f.lastDiff = ""
		}
		return OutcomeSkipped
	}
	if diff == f.lastDiff {
		return OutcomeSkipped
	}

	input := truncate(diff, f.maxDiffChars, "\n... (diff truncated)")
	f.logger.Debug("analyzing working tree diff", zap.Int("diff_chars", len(diff)))

	judgement, err := f.judge.JudgeDiff(ctx, input)
	if err != nil {
		logFailure(f.logger, "security judgement failed", input, err)
		return OutcomeFailed
	}
	f.lastDiff = diff

	if judgement.IsNoIssue() {
		return OutcomeClean
	}

	issue := issueFromFinding(judgement.Finding, types.TypeSecurity, types.SeverityCritical, f.Name())
	stored, score, err := f.state.RecordIssueWithPenalty(issue, f.penalty)
	if err != nil {
		logFailure(f.logger, "failed to record security issue", input, err)
		return OutcomeFailed
	}

	f.logger.Warn("security issue detected",
		zap.String("issue_id", stored.ID),
		zap.String("description", stored.Description),
		zap.String("file_path", stored.FilePath),
		zap.Strings("changed_files", f.changedFiles(ctx)),
		zap.Int("security_score", score))
	return OutcomeRecorded
}

// changedFiles lists the files touched by the working tree, or nil when the
// diff source cannot report them
func (f *FastPath) changedFiles(ctx context.Context) []string {
	src, ok := f.diffs.(statusSource)
	if !ok {
		return nil
	}
	status, err := src.Status(ctx)
	if err != nil {
		f.logger.Debug("failed to read working tree status", zap.Error(err))
		return nil
	}
	return status.Files()
}
