package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibe-assist/vibe-assist/internal/git"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
)

// DefaultMaxCommitDiffChars bounds each commit diff in the review prompt
const DefaultMaxCommitDiffChars = 2000

// DeepPathConfig holds deep-path dependencies
type DeepPathConfig struct {
	Commits      CommitSource        // required
	Reviewer     CharterReviewer     // required
	State        *state.ProjectState // required
	MaxDiffChars int                 // default DefaultMaxCommitDiffChars
	Logger       *zap.Logger         // optional
}

// DeepPath reviews each new commit against the project charter, oldest
// first, advancing the commit cursor only after the charter merge.
type DeepPath struct {
	commits      CommitSource
	reviewer     CharterReviewer
	state        *state.ProjectState
	maxDiffChars int
	logger       *zap.Logger

	// divergedHead suppresses repeated branch-switch logs for one HEAD
	divergedHead string
}

// NewDeepPath creates a deep-path analyzer
func NewDeepPath(cfg *DeepPathConfig) (*DeepPath, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Commits == nil {
		return nil, fmt.Errorf("commit source is required")
	}
	if cfg.Reviewer == nil {
		return nil, fmt.Errorf("charter reviewer is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state is required")
	}

	d := &DeepPath{
		commits:      cfg.Commits,
		reviewer:     cfg.Reviewer,
		state:        cfg.State,
		maxDiffChars: cfg.MaxDiffChars,
		logger:       cfg.Logger,
	}
	if d.maxDiffChars <= 0 {
		d.maxDiffChars = DefaultMaxCommitDiffChars
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	d.logger = d.logger.With(zap.String("analyzer", d.Name()))
	return d, nil
}

// Name implements Analyzer
func (d *DeepPath) Name() string { return "deep_path" }

// RunCycle implements Analyzer. The first cycle with no cursor seeds the
// baseline at HEAD without analysis.
func (d *DeepPath) RunCycle(ctx context.Context) Outcome {
	head, err := d.commits.Head(ctx)
	if err != nil {
		if errors.Is(err, git.ErrNoCommits) {
			return OutcomeSkipped
		}
		logFailure(d.logger, "failed to read HEAD", "", err)
		return OutcomeFailed
	}

	cursor := d.state.CommitCursor()
	if cursor == "" {
		if d.state.SeedCommitBaseline(head) {
			d.logger.Info("commit baseline set", zap.String("commit", types.ShortID(head)))
		}
		return OutcomeSkipped
	}
	if head == cursor {
		return OutcomeSkipped
	}

	descends, err := d.commits.IsAncestor(ctx, cursor, head)
	if err != nil {
		logFailure(d.logger, "failed to compare HEAD with cursor", head, err)
		return OutcomeFailed
	}
	if !descends {
		if d.divergedHead != head {
			d.divergedHead = head
			d.logger.Info("HEAD does not descend from the last analyzed commit, waiting",
				zap.String("head", types.ShortID(head)),
				zap.String("cursor", types.ShortID(cursor)))
		}
		return OutcomeSkipped
	}
	d.divergedHead = ""

	ids, err := d.commits.CommitsSince(ctx, cursor)
	if err != nil {
		logFailure(d.logger, "failed to list new commits", cursor, err)
		return OutcomeFailed
	}
	if len(ids) == 0 {
		return OutcomeSkipped
	}

	d.logger.Info("new commits detected", zap.Int("count", len(ids)))
	for _, id := range ids {
		if ctx.Err() != nil {
			return OutcomeFailed
		}
		if !d.review(ctx, id) {
			return OutcomeFailed
		}
	}
	return OutcomeRecorded
}

// review analyzes one commit and reports whether the cursor advanced
func (d *DeepPath) review(ctx context.Context, id string) bool {
	commit, err := d.commits.Commit(ctx, id)
	if err != nil {
		logFailure(d.logger, "failed to read commit", id, err)
		return false
	}
	diff, err := d.commits.CommitDiff(ctx, id)
	if err != nil {
		logFailure(d.logger, "failed to read commit diff", id, err)
		return false
	}
	diff = truncate(diff, d.maxDiffChars, "\n... (diff truncated)")

	charter := d.state.Snapshot().ProjectCharter
	update, err := d.reviewer.ReviewCommit(ctx, commit, diff, charter)
	if err != nil {
		logFailure(d.logger, "charter review failed", commit.ID+" "+commit.Message, err)
		return false
	}

	if err := d.state.ApplyCommitReview(commit, update); err != nil {
		d.logger.Warn("commit cursor rejected",
			zap.String("commit", commit.ShortID()),
			zap.Error(err))
		return false
	}

	aligned, notes := update.Aligned()
	d.logger.Info("commit analyzed",
		zap.String("commit", commit.ShortID()),
		zap.String("author", commit.Author),
		zap.Bool("aligned", aligned))

	if !aligned {
		description := fmt.Sprintf("Commit %s may drift from the project charter", commit.ShortID())
		if notes != "" {
			description += ": " + notes
		}
		d.state.RecordIssue(types.Issue{
			Type:        types.TypeCharterDrift,
			Description: description,
			Severity:    types.SeverityLow,
			Source:      d.Name(),
		})
	}
	return true
}
