package calculatematchscore

import "advisor-matching/internal/models"

type Input struct {
	FounderID string `json:"founderId"`
	AdvisorID string `json:"advisorId"`
	// SkipCache forces a fresh computation even when the founder's cached
	// set already holds the pair.
	SkipCache bool `json:"skipCache,omitempty"`
}

const (
	StatusScored   = "scored"
	StatusDisabled = "disabled"
)

type Output struct {
	Status           string                 `json:"status"`
	MatchScore       int                    `json:"matchScore"`
	MatchFactors     models.ComponentScores `json:"matchFactors"`
	Reasoning        models.MatchReasoning  `json:"matchReasoning"`
	MeetsThreshold   bool                   `json:"meetsThreshold"`
	AlgorithmVersion string                 `json:"algorithmVersion"`
	FromCache        bool                   `json:"fromCache"`
}
