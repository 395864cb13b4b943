package state

import "github.com/vibe-assist/vibe-assist/internal/types"

// ScorePolicy derives a security score from the active issue list
type ScorePolicy struct {
	// Base is the score of an empty issue list
	Base int
	// Penalties maps severity to the points deducted per issue.
	// Severities missing from the map deduct nothing.
	Penalties map[types.Severity]int
}

// DefaultScorePolicy deducts 10 per Critical, 5 per High and 2 per Medium issue
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		Base: MaxScore,
		Penalties: map[types.Severity]int{
			types.SeverityCritical: 10,
			types.SeverityHigh:     5,
			types.SeverityMedium:   2,
			types.SeverityLow:      0,
		},
	}
}

// Score computes the bounded score for issues, skipping ids in excluded
func (p ScorePolicy) Score(issues []types.Issue, excluded map[string]bool) int {
	score := p.Base
	for _, issue := range issues {
		if excluded[issue.ID] {
			continue
		}
		score -= p.Penalties[issue.Severity]
	}
	return clampScore(score)
}
