package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"go.uber.org/zap"
)

// task is one recurring loop. A task runs in a single goroutine so its
// cycles never overlap.
type task struct {
	name      string
	interval  time.Duration
	immediate bool // run one cycle on start
	nudged    bool // also run on file-change nudges
	cycle     func(ctx context.Context) analysis.Outcome
	analyzer  analysis.Analyzer

	mu    sync.Mutex
	stats TaskStats
}

// TaskStats counts the cycles of one task by outcome
type TaskStats struct {
	Cycles      int64     `json:"cycles"`
	Skipped     int64     `json:"skipped"`
	Clean       int64     `json:"clean"`
	Recorded    int64     `json:"recorded"`
	Failed      int64     `json:"failed"`
	Panics      int64     `json:"panics"`
	Nudges      int64     `json:"nudges,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastRun     time.Time `json:"last_run,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
}

func (t *task) record(outcome analysis.Outcome, panicked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Cycles++
	t.stats.LastOutcome = outcome.String()
	t.stats.LastRun = time.Now()
	switch outcome {
	case analysis.OutcomeSkipped:
		t.stats.Skipped++
	case analysis.OutcomeClean:
		t.stats.Clean++
	case analysis.OutcomeRecorded:
		t.stats.Recorded++
	case analysis.OutcomeFailed:
		t.stats.Failed++
	}
	if panicked {
		t.stats.Panics++
	}
}

func (t *task) snapshot() TaskStats {
	t.mu.Lock()
	stats := t.stats
	t.mu.Unlock()

	if d, ok := t.analyzer.(interface{ Degraded() bool }); ok {
		stats.Degraded = d.Degraded()
	}
	return stats
}

// loop drives t until ctx is done
func (s *Scheduler) loop(ctx context.Context, t *task, nudges <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.immediate {
		s.runCycle(ctx, t)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-nudges:
			t.mu.Lock()
			t.stats.Nudges++
			t.mu.Unlock()
			ticker.Reset(t.interval)
		}
		if ctx.Err() != nil {
			return
		}
		s.runCycle(ctx, t)
	}
}

// runCycle runs one cycle, converting a panic into a failed cycle
func (s *Scheduler) runCycle(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("analyzer cycle panicked",
				zap.String("analyzer", t.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			t.record(analysis.OutcomeFailed, true)
		}
	}()

	outcome := t.cycle(ctx)
	t.record(outcome, false)
}
