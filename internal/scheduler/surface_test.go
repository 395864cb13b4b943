package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/cost"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeReasoning struct {
	prompt  string
	err     error
	goal    string
	frame   []byte
	context map[string]any
}

func (f *fakeReasoning) GeneratePrompt(_ context.Context, goal string, screenshot []byte, projectContext map[string]any) (string, error) {
	f.goal, f.frame, f.context = goal, screenshot, projectContext
	return f.prompt, f.err
}

func (f *fakeReasoning) Stats() ai.ClientStats {
	return ai.ClientStats{Provider: "fake", Calls: 3, CircuitState: "CLOSED"}
}

type fakeInitializer struct {
	result *analysis.ContextResult
	err    error
}

func (f fakeInitializer) Initialize(context.Context) (*analysis.ContextResult, error) {
	return f.result, f.err
}

type fakeBudget struct{}

func (fakeBudget) GetStats() cost.BudgetStats {
	return cost.BudgetStats{HourlyTokensUsed: 42, HourlyTokenLimit: 1000}
}

func seededState(t *testing.T, n int) *state.ProjectState {
	t.Helper()
	st := state.New()
	for i := 0; i < n; i++ {
		_, _, err := st.RecordIssueWithPenalty(types.Issue{
			Type:        types.TypeSecurity,
			Severity:    types.SeverityCritical,
			Description: "hardcoded credential",
		}, 10)
		require.NoError(t, err)
	}
	return st
}

func TestFeedbackClearAndRecalculate(t *testing.T) {
	s, err := New(&Config{State: seededState(t, 3)})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Equal(t, 70, snap.SecurityScore)
	require.Len(t, snap.ActiveIssues, 3)

	snap, err = s.SubmitFeedback(1, types.ActionDismiss, "not reachable")
	require.NoError(t, err)
	assert.Len(t, snap.UserFeedback.DismissedIssues, 1)

	_, err = s.SubmitFeedback(7, types.ActionDismiss, "")
	assert.ErrorIs(t, err, state.ErrIndexOutOfRange)
	_, err = s.SubmitFeedback(0, types.FeedbackAction("snooze"), "")
	assert.ErrorIs(t, err, state.ErrUnknownAction)

	snap = s.ClearIssues()
	assert.Empty(t, snap.ActiveIssues)
	assert.Equal(t, 70, snap.SecurityScore, "clearing does not rescore")

	snap = s.ForceRecalculate()
	assert.Equal(t, 100, snap.SecurityScore)
}

func TestGeneratePrompt(t *testing.T) {
	reasoning := &fakeReasoning{prompt: "Refactor the login form"}
	s, err := New(&Config{State: seededState(t, 1), Reasoning: reasoning})
	require.NoError(t, err)
	require.True(t, s.ReasoningReady())

	prompt, err := s.GeneratePrompt(context.Background(), "fix login", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "Refactor the login form", prompt)
	assert.Equal(t, "fix login", reasoning.goal)
	assert.Equal(t, []byte("png"), reasoning.frame)
	assert.EqualValues(t, 90, reasoning.context["security_score"])
	assert.Len(t, reasoning.context["active_issues"], 1)

	reasoning.err = errors.New("upstream unavailable")
	_, err = s.GeneratePrompt(context.Background(), "fix login", nil)
	assert.Error(t, err)
}

func TestGeneratePromptWithoutReasoning(t *testing.T) {
	s, err := New(&Config{State: state.New()})
	require.NoError(t, err)

	assert.False(t, s.ReasoningReady())
	_, err = s.GeneratePrompt(context.Background(), "goal", nil)
	assert.ErrorIs(t, err, ai.ErrNotInitialized)
	assert.Nil(t, s.Stats().Reasoning)
}

func TestInitializeContext(t *testing.T) {
	want := &analysis.ContextResult{Success: true, ContextFile: "/p/.vibe-assist/context.md"}
	s, err := New(&Config{State: state.New(), ContextInit: fakeInitializer{result: want}})
	require.NoError(t, err)

	got, err := s.InitializeContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	s, err = New(&Config{State: state.New(), ContextInit: fakeInitializer{err: ai.ErrNotInitialized}})
	require.NoError(t, err)
	_, err = s.InitializeContext(context.Background())
	assert.ErrorIs(t, err, ai.ErrNotInitialized)

	s, err = New(&Config{State: state.New()})
	require.NoError(t, err)
	_, err = s.InitializeContext(context.Background())
	assert.Error(t, err)
}

func TestStatsIncludesReasoningAndBudget(t *testing.T) {
	s, err := New(&Config{State: state.New(), Reasoning: &fakeReasoning{}, Budget: fakeBudget{}})
	require.NoError(t, err)

	stats := s.Stats()
	assert.False(t, stats.Running)
	require.NotNil(t, stats.Reasoning)
	assert.Equal(t, "fake", stats.Reasoning.Provider)
	require.NotNil(t, stats.Budget)
	assert.Equal(t, int64(42), stats.Budget.HourlyTokensUsed)
}

func TestSummaryLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	st := state.New()
	for i := 0; i < 7; i++ {
		st.RecordIssue(types.Issue{
			Type:        types.TypeProactiveSuggestion,
			Severity:    types.SeverityMedium,
			Description: strings.Repeat("x", 80),
		})
	}
	require.True(t, st.SeedCommitBaseline("0123456789abcdef"))

	s, err := New(&Config{State: st, SummaryInterval: time.Millisecond, Logger: zap.New(core)})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return logs.FilterMessage("state summary").Len() > 0 }, 5*time.Second, time.Millisecond)
	stopScheduler(t, s)

	fields := logs.FilterMessage("state summary").All()[0].ContextMap()
	assert.EqualValues(t, 100, fields["security_score"])
	assert.EqualValues(t, 7, fields["active_issues"])
	assert.Equal(t, "01234567", fields["last_analyzed_commit"])
	recent, ok := fields["recent"].([]any)
	require.True(t, ok)
	require.Len(t, recent, 5)
	assert.Equal(t, "[Medium] Proactive Suggestion: "+strings.Repeat("x", 60)+"...", recent[0])
}

func TestReconcileTask(t *testing.T) {
	st := seededState(t, 2)
	require.Equal(t, 80, st.Snapshot().SecurityScore)
	require.Equal(t, 2, st.ClearAllIssues())

	s, err := New(&Config{State: st, RecalcInterval: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return st.Snapshot().SecurityScore == 100 }, 5*time.Second, time.Millisecond)
	stopScheduler(t, s)

	assert.GreaterOrEqual(t, s.Stats().Tasks["reconcile"].Recorded, int64(1))
}
