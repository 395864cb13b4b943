// Package state holds the single mutable record shared by every analyzer:
// the security score, the active issues, the project charter, the commit
// cursor and the user's feedback. All access goes through the methods on
// ProjectState, each of which takes the one lock guarding the record.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vibe-assist/vibe-assist/internal/types"
)

const (
	// MaxScore is the score of a project with no known problems
	MaxScore = 100
	// MinScore is the floor the score never drops below
	MinScore = 0
)

var (
	// ErrIndexOutOfRange is returned when an issue index does not address a current issue
	ErrIndexOutOfRange = errors.New("issue index out of range")
	// ErrUnknownAction is returned for feedback actions other than dismiss, false_positive and resolve
	ErrUnknownAction = errors.New("unknown feedback action")
	// ErrInvalidPenalty is returned for negative penalty amounts
	ErrInvalidPenalty = errors.New("penalty must not be negative")
	// ErrCursorRegression is returned when a commit already behind the cursor is offered again
	ErrCursorRegression = errors.New("commit cursor would regress")
	// ErrCursorNotDescendant is returned when a commit does not descend from the analyzed history
	ErrCursorNotDescendant = errors.New("commit is not a descendant of the cursor")
)

// ProjectState is the mutex-guarded project record. The zero value is not
// usable; construct with New.
type ProjectState struct {
	mu sync.RWMutex

	score    int
	issues   []types.Issue
	charter  map[string]any
	cursor   string
	lineage  map[string]struct{}
	feedback types.UserFeedback
	revision uint64

	policy ScorePolicy
	now    func() time.Time
	newID  func() string
}

// Option configures a ProjectState
type Option func(*ProjectState)

// WithScorePolicy replaces the default policy used by RecalculateScore
func WithScorePolicy(p ScorePolicy) Option {
	return func(s *ProjectState) { s.policy = p }
}

// WithClock sets the time source used for detected_at and recorded_at stamps
func WithClock(now func() time.Time) Option {
	return func(s *ProjectState) { s.now = now }
}

// WithIDGenerator sets the generator used for issue ids
func WithIDGenerator(gen func() string) Option {
	return func(s *ProjectState) { s.newID = gen }
}

// New creates a project state with a full score and no history
func New(opts ...Option) *ProjectState {
	s := &ProjectState{
		score:   MaxScore,
		issues:  []types.Issue{},
		charter: map[string]any{},
		lineage: map[string]struct{}{},
		feedback: types.UserFeedback{
			DismissedIssues: []types.FeedbackEntry{},
			FalsePositives:  []types.FeedbackEntry{},
		},
		policy: DefaultScorePolicy(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a deep copy of every field taken under one read lock
func (s *ProjectState) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issues := make([]types.Issue, len(s.issues))
	for i, issue := range s.issues {
		issues[i] = copyIssue(issue)
	}

	return types.Snapshot{
		SecurityScore:      s.score,
		ActiveIssues:       issues,
		ProjectCharter:     copyMap(s.charter),
		LastAnalyzedCommit: s.cursor,
		UserFeedback: types.UserFeedback{
			DismissedIssues: append([]types.FeedbackEntry{}, s.feedback.DismissedIssues...),
			FalsePositives:  append([]types.FeedbackEntry{}, s.feedback.FalsePositives...),
		},
		Revision: s.revision,
	}
}

// RecordIssue appends an issue, stamping an id and detection time when they
// are missing, and returns the stored copy.
func (s *ProjectState) RecordIssue(issue types.Issue) types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.appendIssue(issue)
	s.commit()
	return stored
}

// ApplySecurityPenalty lowers the score by amount and returns the new score
func (s *ProjectState) ApplySecurityPenalty(amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPenalty, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.score -= amount
	s.commit()
	return s.score, nil
}

// RecordIssueWithPenalty records an issue and applies a penalty as one
// mutation, so no reader sees the issue without its deduction.
func (s *ProjectState) RecordIssueWithPenalty(issue types.Issue, amount int) (types.Issue, int, error) {
	if amount < 0 {
		return types.Issue{}, 0, fmt.Errorf("%w: %d", ErrInvalidPenalty, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.appendIssue(issue)
	s.score -= amount
	s.commit()
	return stored, s.score, nil
}

// SeedCommitBaseline sets the cursor to id if no cursor exists yet. The
// baseline commit is treated as already analyzed. Returns whether it seeded.
func (s *ProjectState) SeedCommitBaseline(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor != "" {
		return false
	}
	s.cursor = id
	s.lineage[id] = struct{}{}
	s.commit()
	return true
}

// AdvanceCommitCursor moves the cursor to c. The commit must not have been
// accepted before and at least one of its parents must have been, unless the
// history is still empty.
func (s *ProjectState) AdvanceCommitCursor(c types.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCursorLocked(c); err != nil {
		return err
	}
	s.advanceLocked(c)
	s.commit()
	return nil
}

// ApplyCommitReview merges the charter update of a reviewed commit and
// advances the cursor to it in one step. A rejected commit leaves the
// charter untouched.
func (s *ProjectState) ApplyCommitReview(c types.Commit, update map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCursorLocked(c); err != nil {
		return err
	}
	if len(update) > 0 {
		mergeInto(s.charter, update)
	}
	s.advanceLocked(c)
	s.commit()
	return nil
}

// checkCursorLocked must be called with the lock held
func (s *ProjectState) checkCursorLocked(c types.Commit) error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty commit id", ErrCursorNotDescendant)
	}
	if len(s.lineage) == 0 {
		return nil
	}
	if _, seen := s.lineage[c.ID]; seen {
		return fmt.Errorf("%w: %s already analyzed", ErrCursorRegression, types.ShortID(c.ID))
	}
	for _, parent := range c.Parents {
		if _, ok := s.lineage[parent]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (cursor %s)", ErrCursorNotDescendant, types.ShortID(c.ID), types.ShortID(s.cursor))
}

func (s *ProjectState) advanceLocked(c types.Commit) {
	s.cursor = c.ID
	s.lineage[c.ID] = struct{}{}
}

// CommitCursor returns the id of the last analyzed commit, or "" if none
func (s *ProjectState) CommitCursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// MergeCharter merges update into the charter. Nested objects are merged key
// by key, every other value replaces what was there.
func (s *ProjectState) MergeCharter(update map[string]any) {
	if len(update) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mergeInto(s.charter, update)
	s.commit()
}

// RecordFeedback applies a user disposition to the issue at index.
// dismiss and false_positive are recorded in the feedback lists; resolve
// removes the issue. Rejected requests leave the state untouched.
func (s *ProjectState) RecordFeedback(index int, action types.FeedbackAction, note string) error {
	if !action.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.issues) {
		return fmt.Errorf("%w: %d (have %d issues)", ErrIndexOutOfRange, index, len(s.issues))
	}

	entry := types.FeedbackEntry{
		IssueIndex: index,
		IssueID:    s.issues[index].ID,
		Action:     action,
		Note:       note,
		RecordedAt: s.now(),
	}

	switch action {
	case types.ActionDismiss:
		s.feedback.DismissedIssues = append(s.feedback.DismissedIssues, entry)
	case types.ActionFalsePositive:
		s.feedback.FalsePositives = append(s.feedback.FalsePositives, entry)
	case types.ActionResolve:
		s.issues = append(s.issues[:index:index], s.issues[index+1:]...)
		s.clamp()
	}
	s.commit()
	return nil
}

// ClearAllIssues drops every active issue and returns how many were removed.
// The score is left as is until the next recalculation.
func (s *ProjectState) ClearAllIssues() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.issues)
	s.issues = []types.Issue{}
	s.clamp()
	s.commit()
	return n
}

// RecalculateScore derives the score from the active issues using the
// configured policy and returns it.
func (s *ProjectState) RecalculateScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.score = s.policy.Score(s.issues, s.excludedIDs())
	s.clamp()
	s.commit()
	return s.score
}

// Revision returns the number of mutations applied so far
func (s *ProjectState) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// appendIssue must be called with the lock held
func (s *ProjectState) appendIssue(issue types.Issue) types.Issue {
	if issue.ID == "" {
		issue.ID = s.newID()
	}
	if issue.DetectedAt.IsZero() {
		issue.DetectedAt = s.now()
	}
	issue = copyIssue(issue)
	s.issues = append(s.issues, issue)
	return copyIssue(issue)
}

// excludedIDs must be called with the lock held
func (s *ProjectState) excludedIDs() map[string]bool {
	excluded := make(map[string]bool, len(s.feedback.DismissedIssues)+len(s.feedback.FalsePositives))
	for _, e := range s.feedback.DismissedIssues {
		excluded[e.IssueID] = true
	}
	for _, e := range s.feedback.FalsePositives {
		excluded[e.IssueID] = true
	}
	return excluded
}

// commit finishes a mutation: bounds the score and bumps the revision.
// Must be called with the lock held.
func (s *ProjectState) commit() {
	s.clamp()
	s.revision++
}

func (s *ProjectState) clamp() {
	s.score = clampScore(s.score)
}

func clampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
