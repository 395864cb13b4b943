package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/capture"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	// genai imports opencensus, whose view worker starts in init and never exits
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// timeoutJudge fails every reasoning call with a deadline error
type timeoutJudge struct {
	calls atomic.Int64
}

func (j *timeoutJudge) JudgeDiff(context.Context, string) (ai.Judgement, error) {
	j.calls.Add(1)
	return ai.Judgement{}, context.DeadlineExceeded
}

func (j *timeoutJudge) JudgeScreen(context.Context, []byte, int, int) (ai.Judgement, error) {
	j.calls.Add(1)
	return ai.Judgement{}, context.DeadlineExceeded
}

func (j *timeoutJudge) ReviewCommit(context.Context, types.Commit, string, map[string]any) (ai.CharterUpdate, error) {
	j.calls.Add(1)
	return nil, context.DeadlineExceeded
}

// changingDiffs returns a different diff on every call
type changingDiffs struct {
	n atomic.Int64
}

func (d *changingDiffs) WorkingTreeDiff(context.Context) (string, error) {
	return fmt.Sprintf("+query := \"SELECT * FROM users WHERE id=\" + id // %d", d.n.Add(1)), nil
}

// oneCommitAhead always has commit c1 on top of c0
type oneCommitAhead struct{}

func (oneCommitAhead) Head(context.Context) (string, error) { return "c1", nil }
func (oneCommitAhead) IsAncestor(context.Context, string, string) (bool, error) {
	return true, nil
}
func (oneCommitAhead) CommitsSince(context.Context, string) ([]string, error) {
	return []string{"c1"}, nil
}
func (oneCommitAhead) Commit(context.Context, string) (types.Commit, error) {
	return types.Commit{ID: "c1", Parents: []string{"c0"}, Message: "add feature"}, nil
}
func (oneCommitAhead) CommitDiff(context.Context, string) (string, error) {
	return "+feature", nil
}

// funcAnalyzer adapts a function to analysis.Analyzer
type funcAnalyzer struct {
	name string
	fn   func(context.Context) analysis.Outcome
}

func (f funcAnalyzer) Name() string                                  { return f.name }
func (f funcAnalyzer) RunCycle(ctx context.Context) analysis.Outcome { return f.fn(ctx) }

func countingAnalyzer(name string, outcome analysis.Outcome) (funcAnalyzer, *atomic.Int64) {
	var n atomic.Int64
	return funcAnalyzer{name: name, fn: func(context.Context) analysis.Outcome {
		n.Add(1)
		return outcome
	}}, &n
}

func stopScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

// Every reasoning call times out: N cycles of every analyzer leave the
// state untouched and nothing escapes the scheduler.
func TestAllReasoningCallsTimeOut(t *testing.T) {
	st := state.New()
	require.True(t, st.SeedCommitBaseline("c0"))
	judge := &timeoutJudge{}

	fast, err := analysis.NewFastPath(&analysis.FastPathConfig{Diffs: &changingDiffs{}, Judge: judge, State: st})
	require.NoError(t, err)
	deep, err := analysis.NewDeepPath(&analysis.DeepPathConfig{Commits: oneCommitAhead{}, Reviewer: judge, State: st})
	require.NoError(t, err)
	screen, err := analysis.NewScreenAnalyzer(&analysis.ScreenConfig{
		Source: capture.SourceFunc(func(context.Context) ([]byte, error) { return []byte("png"), nil }),
		Judge:  judge,
		State:  st,
	})
	require.NoError(t, err)

	s, err := New(&Config{
		State:          st,
		FastPath:       fast,
		DeepPath:       deep,
		Screen:         screen,
		FastInterval:   5 * time.Millisecond,
		DeepInterval:   5 * time.Millisecond,
		ScreenInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	before := st.Snapshot()

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		stats := s.Stats().Tasks
		return stats["fast_path"].Failed >= 5 && stats["deep_path"].Failed >= 5 && stats["screen"].Failed >= 5
	}, 10*time.Second, 5*time.Millisecond)
	stopScheduler(t, s)

	after := st.Snapshot()
	assert.Equal(t, 100, after.SecurityScore)
	assert.Empty(t, after.ActiveIssues)
	assert.Equal(t, "c0", after.LastAnalyzedCommit)
	assert.Empty(t, cmp.Diff(before, after, cmpopts.EquateEmpty()))
	assert.GreaterOrEqual(t, judge.calls.Load(), int64(15))
}

func TestPanickingAnalyzerKeepsRunning(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	var n atomic.Int64
	boom := funcAnalyzer{name: "boom", fn: func(context.Context) analysis.Outcome {
		if n.Add(1)%2 == 1 {
			panic("nil map write")
		}
		return analysis.OutcomeClean
	}}

	s, err := New(&Config{State: state.New(), FastPath: boom, FastInterval: 2 * time.Millisecond, Logger: zap.New(core)})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Stats().Tasks["boom"].Cycles >= 4 }, 5*time.Second, 2*time.Millisecond)
	stopScheduler(t, s)

	stats := s.Stats().Tasks["boom"]
	assert.GreaterOrEqual(t, stats.Panics, int64(2))
	assert.Equal(t, stats.Panics, stats.Failed)
	assert.GreaterOrEqual(t, stats.Clean, int64(2))

	entries := logs.FilterMessage("analyzer cycle panicked").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "boom", entries[0].ContextMap()["analyzer"])
}

type fakeWatcher struct {
	nudges chan struct{}
	ran    atomic.Bool
}

func (w *fakeWatcher) Run(ctx context.Context) error {
	w.ran.Store(true)
	<-ctx.Done()
	return nil
}

func (w *fakeWatcher) Nudges() <-chan struct{} { return w.nudges }

func TestNudgeTriggersFastPath(t *testing.T) {
	fast, fastRuns := countingAnalyzer("fast_path", analysis.OutcomeSkipped)
	deep, deepRuns := countingAnalyzer("deep_path", analysis.OutcomeSkipped)
	watcher := &fakeWatcher{nudges: make(chan struct{})}

	s, err := New(&Config{
		State:        state.New(),
		FastPath:     fast,
		DeepPath:     deep,
		FastInterval: time.Hour,
		DeepInterval: time.Hour,
		Watcher:      watcher,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer stopScheduler(t, s)

	require.Eventually(t, func() bool { return fastRuns.Load() == 1 && deepRuns.Load() == 1 }, 5*time.Second, time.Millisecond,
		"each analyzer runs once on start")

	watcher.nudges <- struct{}{}
	require.Eventually(t, func() bool { return fastRuns.Load() == 2 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, int64(1), deepRuns.Load(), "nudges only reach the fast path")
	assert.True(t, watcher.ran.Load())
	assert.Equal(t, int64(1), s.Stats().Tasks["fast_path"].Nudges)
}

func TestCyclesNeverOverlap(t *testing.T) {
	var active, maxActive atomic.Int64
	slow := funcAnalyzer{name: "slow", fn: func(context.Context) analysis.Outcome {
		cur := active.Add(1)
		for {
			prev := maxActive.Load()
			if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return analysis.OutcomeClean
	}}

	s, err := New(&Config{State: state.New(), FastPath: slow, FastInterval: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Stats().Tasks["slow"].Cycles >= 5 }, 5*time.Second, time.Millisecond)
	stopScheduler(t, s)

	assert.Equal(t, int64(1), maxActive.Load())
}

func TestStopAbandonsInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	blocking := funcAnalyzer{name: "blocking", fn: func(ctx context.Context) analysis.Outcome {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return analysis.OutcomeFailed
	}}

	s, err := New(&Config{State: state.New(), Screen: blocking, ScreenInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	<-started

	stopScheduler(t, s)
	assert.False(t, s.Running())
	assert.Equal(t, int64(1), s.Stats().Tasks["blocking"].Failed)
}

func TestStopTimesOut(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	stuck := funcAnalyzer{name: "stuck", fn: func(context.Context) analysis.Outcome {
		close(started)
		<-release
		return analysis.OutcomeClean
	}}

	s, err := New(&Config{State: state.New(), FastPath: stuck, FastInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.group.Wait())
}

func TestStartLifecycle(t *testing.T) {
	s, err := New(&Config{State: state.New()})
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()), "stop before start is a no-op")
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	stopScheduler(t, s)
	require.NoError(t, s.Start(context.Background()), "restart after stop")
	stopScheduler(t, s)
}

func TestParentContextCancelStopsTasks(t *testing.T) {
	fast, runs := countingAnalyzer("fast_path", analysis.OutcomeSkipped)
	s, err := New(&Config{State: state.New(), FastPath: fast, FastInterval: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, s.group.Wait())
	stopScheduler(t, s)
}

func TestNewValidation(t *testing.T) {
	fast, _ := countingAnalyzer("fast_path", analysis.OutcomeSkipped)
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"missing state", &Config{}},
		{"zero interval", &Config{State: state.New(), FastPath: fast}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}
