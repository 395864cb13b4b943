// Package scheduler owns the ProjectState and drives the analyzers as
// independent recurring tasks. It is also the surface the HTTP API reads
// and writes through.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/cost"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reasoning is the one-shot side of the reasoning client
type Reasoning interface {
	GeneratePrompt(ctx context.Context, goal string, screenshot []byte, projectContext map[string]any) (string, error)
	Stats() ai.ClientStats
}

// ContextInitializer builds the project context on request
type ContextInitializer interface {
	Initialize(ctx context.Context) (*analysis.ContextResult, error)
}

// Watcher produces file-change nudges for the fast path
type Watcher interface {
	Run(ctx context.Context) error
	Nudges() <-chan struct{}
}

// BudgetReporter exposes token budget usage
type BudgetReporter interface {
	GetStats() cost.BudgetStats
}

// Config holds scheduler dependencies and intervals
type Config struct {
	State *state.ProjectState // required

	// Analyzers; a nil analyzer is not scheduled
	FastPath analysis.Analyzer
	DeepPath analysis.Analyzer
	Screen   analysis.Analyzer

	FastInterval    time.Duration
	DeepInterval    time.Duration
	ScreenInterval  time.Duration
	SummaryInterval time.Duration // 0 disables the summary log
	RecalcInterval  time.Duration // 0 disables periodic score reconcile

	Watcher     Watcher            // optional
	Reasoning   Reasoning          // nil when no provider is configured
	ContextInit ContextInitializer // optional
	Budget      BudgetReporter     // optional
	Logger      *zap.Logger
}

// Scheduler runs the recurring tasks
type Scheduler struct {
	state       *state.ProjectState
	tasks       []*task
	watcher     Watcher
	reasoning   Reasoning
	contextInit ContextInitializer
	budget      BudgetReporter
	logger      *zap.Logger
	startedAt   time.Time

	// Control
	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// New creates a scheduler; it does not start any task
func New(cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		state:       cfg.State,
		watcher:     cfg.Watcher,
		reasoning:   cfg.Reasoning,
		contextInit: cfg.ContextInit,
		budget:      cfg.Budget,
		logger:      logger,
	}

	for _, a := range []struct {
		analyzer analysis.Analyzer
		interval time.Duration
		nudged   bool
	}{
		{cfg.FastPath, cfg.FastInterval, true},
		{cfg.DeepPath, cfg.DeepInterval, false},
		{cfg.Screen, cfg.ScreenInterval, false},
	} {
		if a.analyzer == nil {
			continue
		}
		if a.interval <= 0 {
			return nil, fmt.Errorf("interval for %s must be positive (got %v)", a.analyzer.Name(), a.interval)
		}
		s.tasks = append(s.tasks, &task{
			name:      a.analyzer.Name(),
			interval:  a.interval,
			immediate: true,
			nudged:    a.nudged,
			cycle:     a.analyzer.RunCycle,
			analyzer:  a.analyzer,
		})
	}

	if cfg.SummaryInterval > 0 {
		s.tasks = append(s.tasks, &task{
			name:     "summary",
			interval: cfg.SummaryInterval,
			cycle: func(context.Context) analysis.Outcome {
				s.logSummary()
				return analysis.OutcomeClean
			},
		})
	}
	if cfg.RecalcInterval > 0 {
		s.tasks = append(s.tasks, &task{
			name:     "reconcile",
			interval: cfg.RecalcInterval,
			cycle: func(context.Context) analysis.Outcome {
				before := s.state.Snapshot().SecurityScore
				if after := s.state.RecalculateScore(); after != before {
					s.logger.Info("security score reconciled", zap.Int("from", before), zap.Int("to", after))
					return analysis.OutcomeRecorded
				}
				return analysis.OutcomeClean
			},
		})
	}

	return s, nil
}

// Start launches every task. The tasks stop when ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group = &errgroup.Group{}
	s.running = true
	s.startedAt = time.Now()

	var nudges <-chan struct{}
	if s.watcher != nil {
		nudges = s.watcher.Nudges()
		s.group.Go(func() error {
			if err := s.watcher.Run(runCtx); err != nil {
				s.logger.Warn("file watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	for _, t := range s.tasks {
		var taskNudges <-chan struct{}
		if t.nudged {
			taskNudges = nudges
		}
		s.group.Go(func() error {
			s.loop(runCtx, t, taskNudges)
			return nil
		})
	}

	s.logger.Info("scheduler started", zap.Int("tasks", len(s.tasks)), zap.Bool("file_watch", s.watcher != nil))
	return nil
}

// Stop cancels every task and waits for them to return, bounded by ctx.
// In-flight reasoning calls are abandoned; a task holding the state lock
// always finishes its one mutation first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cancel()
	s.running = false

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// Running reports whether tasks are active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Snapshot returns a consistent copy of the project state
func (s *Scheduler) Snapshot() types.Snapshot {
	return s.state.Snapshot()
}

// SubmitFeedback records a disposition for the issue at index
func (s *Scheduler) SubmitFeedback(index int, action types.FeedbackAction, note string) (types.Snapshot, error) {
	if err := s.state.RecordFeedback(index, action, note); err != nil {
		return types.Snapshot{}, err
	}
	s.logger.Info("feedback recorded", zap.Int("issue_index", index), zap.String("action", string(action)))
	return s.state.Snapshot(), nil
}

// ClearIssues drops every active issue
func (s *Scheduler) ClearIssues() types.Snapshot {
	n := s.state.ClearAllIssues()
	s.logger.Info("issues cleared", zap.Int("count", n))
	return s.state.Snapshot()
}

// ForceRecalculate recomputes the score from the active issues
func (s *Scheduler) ForceRecalculate() types.Snapshot {
	score := s.state.RecalculateScore()
	s.logger.Info("security score recalculated", zap.Int("score", score))
	return s.state.Snapshot()
}

// ReasoningReady reports whether a reasoning provider is configured
func (s *Scheduler) ReasoningReady() bool {
	return s.reasoning != nil
}

// GeneratePrompt performs the one-shot oracle call with the current state
// as project context. It never mutates the state.
func (s *Scheduler) GeneratePrompt(ctx context.Context, goal string, screenshot []byte) (string, error) {
	if s.reasoning == nil {
		return "", ai.ErrNotInitialized
	}
	return s.reasoning.GeneratePrompt(ctx, goal, screenshot, snapshotContext(s.state.Snapshot()))
}

// InitializeContext runs the project context initializer
func (s *Scheduler) InitializeContext(ctx context.Context) (*analysis.ContextResult, error) {
	if s.contextInit == nil {
		return nil, fmt.Errorf("context initialization is not configured")
	}
	result, err := s.contextInit.Initialize(ctx)
	if err != nil {
		s.logger.Warn("context initialization failed", zap.Error(err))
		return nil, err
	}
	s.logger.Info("project context initialized", zap.String("context_file", result.ContextFile))
	return result, nil
}

// snapshotContext converts a snapshot into the generic map form handed to
// the reasoning prompts
func snapshotContext(snap types.Snapshot) map[string]any {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
