package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/capture"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func frameSource(errs ...error) (capture.Source, *int) {
	calls := 0
	return capture.SourceFunc(func(context.Context) ([]byte, error) {
		calls++
		if len(errs) >= calls && errs[calls-1] != nil {
			return nil, errs[calls-1]
		}
		return []byte("png"), nil
	}), &calls
}

func TestScreenAnalyzerRecordsSuggestion(t *testing.T) {
	st := state.New()
	src, _ := frameSource()
	judge := &fakeJudge{judgement: ai.Judgement{Finding: &ai.Finding{
		Description: "The test output shows a nil pointer panic in parser.go",
		FilePath:    "parser.go",
	}}}
	s, err := NewScreenAnalyzer(&ScreenConfig{Source: src, Judge: judge, State: st})
	require.NoError(t, err)

	require.Equal(t, OutcomeRecorded, s.RunCycle(context.Background()))

	snap := st.Snapshot()
	assert.Equal(t, 100, snap.SecurityScore, "suggestions carry no penalty")
	require.Len(t, snap.ActiveIssues, 1)
	assert.Equal(t, types.TypeProactiveSuggestion, snap.ActiveIssues[0].Type)
	assert.Equal(t, types.SeverityMedium, snap.ActiveIssues[0].Severity)
	assert.Equal(t, "parser.go", snap.ActiveIssues[0].FilePath)
}

func TestScreenAnalyzerNoneIsNoop(t *testing.T) {
	st := state.New()
	src, _ := frameSource()
	s, err := NewScreenAnalyzer(&ScreenConfig{Source: src, Judge: &fakeJudge{judgement: ai.NoIssue}, State: st})
	require.NoError(t, err)

	assert.Equal(t, OutcomeClean, s.RunCycle(context.Background()))
	assert.Empty(t, st.Snapshot().ActiveIssues)
}

func TestScreenAnalyzerWithoutSourceIsDegraded(t *testing.T) {
	judge := &fakeJudge{}
	s, err := NewScreenAnalyzer(&ScreenConfig{Judge: judge, State: state.New()})
	require.NoError(t, err)

	assert.True(t, s.Degraded())
	assert.Equal(t, OutcomeSkipped, s.RunCycle(context.Background()))
	assert.Zero(t, judge.calls())
}

func TestScreenAnalyzerDegradesOnceOnUnavailable(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	src, calls := frameSource(fmt.Errorf("%w: permission denied", capture.ErrUnavailable))
	judge := &fakeJudge{}
	s, err := NewScreenAnalyzer(&ScreenConfig{Source: src, Judge: judge, State: state.New(), Logger: zap.New(core)})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Equal(t, OutcomeSkipped, s.RunCycle(context.Background()))
	}
	assert.True(t, s.Degraded())
	assert.Equal(t, 1, *calls, "capture is not attempted again")
	assert.Zero(t, judge.calls())
	assert.Equal(t, 1, logs.FilterMessage("screen capture unavailable, screen analysis disabled").Len())
}

func TestScreenAnalyzerTransientFailures(t *testing.T) {
	st := state.New()
	src, _ := frameSource(errors.New("capture timed out"))
	judge := &fakeJudge{err: context.DeadlineExceeded}
	s, err := NewScreenAnalyzer(&ScreenConfig{Source: src, Judge: judge, State: st})
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, s.RunCycle(context.Background()), "capture error")
	assert.Equal(t, OutcomeFailed, s.RunCycle(context.Background()), "reasoning timeout")
	assert.False(t, s.Degraded())
	assert.Empty(t, st.Snapshot().ActiveIssues)
}

func TestScreenAnalyzerRecoversAfterFailedGrab(t *testing.T) {
	st := state.New()
	grabErr := fmt.Errorf("failed to capture display %d: %w", 0, errors.New("XGetImage failed"))
	src, calls := frameSource(grabErr)
	judge := &fakeJudge{judgement: ai.Judgement{Finding: &ai.Finding{Description: "Consider adding a retry around the flaky upload"}}}
	s, err := NewScreenAnalyzer(&ScreenConfig{Source: src, Judge: judge, State: st})
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, s.RunCycle(context.Background()))
	assert.False(t, s.Degraded(), "a failed grab only costs the current cycle")

	assert.Equal(t, OutcomeRecorded, s.RunCycle(context.Background()))
	assert.Equal(t, 2, *calls)
	require.Len(t, st.Snapshot().ActiveIssues, 1)
}

func TestNewScreenAnalyzerValidation(t *testing.T) {
	_, err := NewScreenAnalyzer(nil)
	assert.Error(t, err)
	_, err = NewScreenAnalyzer(&ScreenConfig{State: state.New()})
	assert.Error(t, err)
	_, err = NewScreenAnalyzer(&ScreenConfig{Judge: &fakeJudge{}})
	assert.Error(t, err)
}
