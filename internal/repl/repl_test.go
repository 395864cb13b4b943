package repl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/api"
	"github.com/vibe-assist/vibe-assist/internal/scheduler"
	"github.com/vibe-assist/vibe-assist/internal/types"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type fakeDaemon struct {
	snap     types.Snapshot
	err      error
	feedback []string
	goal     string
	frame    []byte
	file     string
}

func (f *fakeDaemon) State(context.Context) (*types.Snapshot, error) {
	return &f.snap, f.err
}

func (f *fakeDaemon) Health(context.Context) (*api.HealthResponse, error) {
	return &api.HealthResponse{
		Status:               "healthy",
		ReasoningInitialized: true,
		Provider:             "gemini",
		Scheduler: scheduler.Stats{
			Running:   true,
			Tasks:     map[string]scheduler.TaskStats{"screen": {Cycles: 3, Degraded: true}, "fast_path": {Cycles: 9, Recorded: 1, LastOutcome: "skipped"}},
			Reasoning: &ai.ClientStats{FastModel: "gemini-2.5-flash", DeepModel: "gemini-2.5-pro", Calls: 4, CircuitState: "CLOSED"},
		},
	}, f.err
}

func (f *fakeDaemon) Feedback(_ context.Context, index int, action types.FeedbackAction, note string) (*types.Snapshot, error) {
	f.feedback = append(f.feedback, string(action)+":"+note)
	return &f.snap, f.err
}

func (f *fakeDaemon) ClearIssues(context.Context) (*types.Snapshot, error) {
	f.snap.ActiveIssues = nil
	return &f.snap, f.err
}

func (f *fakeDaemon) Recalculate(context.Context) (*types.Snapshot, error) {
	f.snap.SecurityScore = 100
	return &f.snap, f.err
}

func (f *fakeDaemon) GeneratePrompt(_ context.Context, goal string, frame []byte, filename string) (string, error) {
	f.goal, f.frame, f.file = goal, frame, filename
	return "Do the thing carefully", f.err
}

func (f *fakeDaemon) InitializeContext(context.Context) (*analysis.ContextResult, error) {
	return &analysis.ContextResult{Success: true, ContextFile: "/p/.vibe-assist/context.md", Data: &ai.ProjectDescription{ProjectName: "demo"}}, f.err
}

func newTestREPL(t *testing.T, d *fakeDaemon) (*REPL, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := New(&Config{Daemon: d, Out: &out})
	require.NoError(t, err)
	return r, &out
}

func sampleSnapshot() types.Snapshot {
	return types.Snapshot{
		SecurityScore: 70,
		ActiveIssues: []types.Issue{
			{Type: types.TypeSecurity, Severity: types.SeverityCritical, Description: "SQL built from user input", FilePath: "db.go", LineNumber: 12},
			{Type: types.TypeCharterDrift, Severity: types.SeverityLow, Description: "Commit abcd1234 may drift from the project charter"},
		},
		ProjectCharter:     map[string]any{"project_name": "demo", "initialized": true},
		LastAnalyzedCommit: "0123456789abcdef",
	}
}

func TestExecuteCommands(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"state", "state", []string{"Security score: 70/100", "Active issues:  2", "Last commit:    01234567", "Project:        demo", "0. [Critical] Security: SQL built from user input", "db.go:12"}},
		{"issues", "issues", []string{"1. [Low] Charter Drift"}},
		{"health", "health", []string{"Reasoning: ✓ gemini", "fast=gemini-2.5-flash", "screen", "degraded", "fast_path"}},
		{"init", "init", []string{"Context written to /p/.vibe-assist/context.md", "Project: demo"}},
		{"help", "help", []string{"feedback <index> <action> [note]", "oracle <image> <goal>"}},
		{"blank", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, out := newTestREPL(t, &fakeDaemon{snap: sampleSnapshot()})
			require.NoError(t, r.Execute(tt.line))
			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestFeedbackCommand(t *testing.T) {
	d := &fakeDaemon{snap: sampleSnapshot()}
	r, out := newTestREPL(t, d)

	require.NoError(t, r.Execute("feedback 0 false_positive test fixture only"))
	assert.Equal(t, []string{"false_positive:test fixture only"}, d.feedback)
	assert.Contains(t, out.String(), "Issue 0 marked false_positive")

	assert.ErrorContains(t, r.Execute("feedback 0"), "usage")
	assert.ErrorContains(t, r.Execute("feedback x dismiss"), "invalid issue index")
	assert.ErrorContains(t, r.Execute("feedback 0 snooze"), "unknown action")
	assert.Len(t, d.feedback, 1)
}

func TestClearAndRecalc(t *testing.T) {
	d := &fakeDaemon{snap: sampleSnapshot()}
	r, out := newTestREPL(t, d)

	require.NoError(t, r.Execute("clear"))
	assert.Contains(t, out.String(), "Issues cleared (score 70")
	require.NoError(t, r.Execute("RECALC"))
	assert.Contains(t, out.String(), "Security score: 100/100")
}

func TestOracleCommand(t *testing.T) {
	d := &fakeDaemon{}
	r, out := newTestREPL(t, d)
	image := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(image, []byte("png-bytes"), 0o644))

	require.NoError(t, r.Execute("oracle "+image+" make the tests pass"))
	assert.Equal(t, "make the tests pass", d.goal)
	assert.Equal(t, []byte("png-bytes"), d.frame)
	assert.Equal(t, "shot.png", d.file)
	assert.Contains(t, out.String(), "Do the thing carefully")

	assert.Error(t, r.Execute("oracle /does/not/exist.png goal"))
	assert.ErrorContains(t, r.Execute("oracle only-image"), "usage")
}

func TestExecuteErrors(t *testing.T) {
	r, _ := newTestREPL(t, &fakeDaemon{err: errors.New("connection refused")})

	assert.ErrorContains(t, r.Execute("state"), "connection refused")
	assert.ErrorContains(t, r.Execute("frobnicate"), "unknown command")
	assert.ErrorIs(t, r.Execute("quit"), errExit)
}

func TestNewRequiresDaemon(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}

func TestPrintIssuesEmpty(t *testing.T) {
	var out bytes.Buffer
	PrintIssues(&out, nil)
	assert.Contains(t, out.String(), "No active issues")
}
