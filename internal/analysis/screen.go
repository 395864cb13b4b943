package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/vibe-assist/vibe-assist/internal/capture"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
)

// ScreenConfig holds screen analyzer dependencies
type ScreenConfig struct {
	Source capture.Source      // nil means capture is unavailable
	Judge  ScreenJudge         // required
	State  *state.ProjectState // required
	Logger *zap.Logger         // optional
}

// ScreenAnalyzer turns screen frames into advisory suggestions. Once the
// capture source reports capture.ErrUnavailable the analyzer stays degraded
// and every later cycle is a no-op.
type ScreenAnalyzer struct {
	source capture.Source
	judge  ScreenJudge
	state  *state.ProjectState
	logger *zap.Logger

	degraded atomic.Bool
}

// NewScreenAnalyzer creates a screen analyzer
func NewScreenAnalyzer(cfg *ScreenConfig) (*ScreenAnalyzer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("screen judge is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state is required")
	}

	s := &ScreenAnalyzer{
		source: cfg.Source,
		judge:  cfg.Judge,
		state:  cfg.State,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("analyzer", s.Name()))

	if s.source == nil {
		s.degrade(capture.ErrUnavailable)
	}
	return s, nil
}

// Name implements Analyzer
func (s *ScreenAnalyzer) Name() string { return "screen" }

// Degraded reports whether capture has been given up on
func (s *ScreenAnalyzer) Degraded() bool {
	return s.degraded.Load()
}

func (s *ScreenAnalyzer) degrade(err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Warn("screen capture unavailable, screen analysis disabled", zap.Error(err))
	}
}

// RunCycle implements Analyzer
func (s *ScreenAnalyzer) RunCycle(ctx context.Context) Outcome {
	if s.Degraded() {
		return OutcomeSkipped
	}

	frame, err := s.source.Capture(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrUnavailable) {
			s.degrade(err)
			return OutcomeSkipped
		}
		logFailure(s.logger, "screen capture failed", "", err)
		return OutcomeFailed
	}

	snap := s.state.Snapshot()
	judgement, err := s.judge.JudgeScreen(ctx, frame, snap.SecurityScore, len(snap.ActiveIssues))
	if err != nil {
		input := fmt.Sprintf("screen frame (%d bytes), score %d, %d active issues",
			len(frame), snap.SecurityScore, len(snap.ActiveIssues))
		logFailure(s.logger, "screen judgement failed", input, err)
		return OutcomeFailed
	}
	if judgement.IsNoIssue() {
		return OutcomeClean
	}

	issue := issueFromFinding(judgement.Finding, types.TypeProactiveSuggestion, types.SeverityMedium, s.Name())
	stored := s.state.RecordIssue(issue)
	s.logger.Info("proactive suggestion recorded",
		zap.String("issue_id", stored.ID),
		zap.String("description", truncate(stored.Description, 60, "...")))
	return OutcomeRecorded
}
