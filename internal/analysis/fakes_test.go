package analysis

import (
	"context"
	"sync"

	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/git"
	"github.com/vibe-assist/vibe-assist/internal/types"
)

// fakeDiffs returns diffs from a script, repeating the last one
type fakeDiffs struct {
	diffs []string
	err   error
}

func (f *fakeDiffs) WorkingTreeDiff(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if len(f.diffs) == 0 {
		return "", nil
	}
	d := f.diffs[0]
	if len(f.diffs) > 1 {
		f.diffs = f.diffs[1:]
	}
	return d, nil
}

// fakeJudge implements every reasoning interface the analyzers consume
type fakeJudge struct {
	mu sync.Mutex

	judgement ai.Judgement
	updates   []ai.CharterUpdate
	err       error

	diffCalls   int
	screenCalls int
	reviewed    []string
	charters    []map[string]any
	diffs       []string
}

func (f *fakeJudge) JudgeDiff(_ context.Context, diff string) (ai.Judgement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diffCalls++
	f.diffs = append(f.diffs, diff)
	return f.judgement, f.err
}

func (f *fakeJudge) JudgeScreen(_ context.Context, _ []byte, _, _ int) (ai.Judgement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenCalls++
	return f.judgement, f.err
}

func (f *fakeJudge) ReviewCommit(_ context.Context, commit types.Commit, diff string, charter map[string]any) (ai.CharterUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewed = append(f.reviewed, commit.ID)
	f.charters = append(f.charters, charter)
	f.diffs = append(f.diffs, diff)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.updates) == 0 {
		return ai.CharterUpdate{}, nil
	}
	u := f.updates[0]
	f.updates = f.updates[1:]
	return u, nil
}

func (f *fakeJudge) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diffCalls + f.screenCalls + len(f.reviewed)
}

// fakeHistory is an in-memory commit graph with a movable HEAD
type fakeHistory struct {
	commits map[string]types.Commit
	order   []string // topological order, oldest first
	head    string
	diffs   map[string]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{commits: map[string]types.Commit{}, diffs: map[string]string{}}
}

func (h *fakeHistory) add(id string, parents ...string) {
	h.commits[id] = types.Commit{ID: id, Parents: parents, Author: "Dev", Message: "commit " + id}
	h.order = append(h.order, id)
	h.diffs[id] = "+change in " + id
	h.head = id
}

func (h *fakeHistory) ancestors(id string) map[string]bool {
	seen := map[string]bool{}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, h.commits[cur].Parents...)
	}
	return seen
}

func (h *fakeHistory) Head(context.Context) (string, error) {
	if h.head == "" {
		return "", git.ErrNoCommits
	}
	return h.head, nil
}

func (h *fakeHistory) IsAncestor(_ context.Context, ancestor, descendant string) (bool, error) {
	return h.ancestors(descendant)[ancestor], nil
}

func (h *fakeHistory) CommitsSince(_ context.Context, cursor string) ([]string, error) {
	reachable := h.ancestors(h.head)
	var ids []string
	for _, id := range h.order {
		if !reachable[id] || id == cursor {
			continue
		}
		if cursor == "" || h.ancestors(id)[cursor] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (h *fakeHistory) Commit(_ context.Context, id string) (types.Commit, error) {
	return h.commits[id], nil
}

func (h *fakeHistory) CommitDiff(_ context.Context, id string) (string, error) {
	return h.diffs[id], nil
}
