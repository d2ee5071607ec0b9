package models

import "time"

const (
	AlgorithmVersion = "2.0"
	QualityThreshold = 60
	ScoreCacheTTL    = 24 * time.Hour
)

// Component weights of the overall score, in percent. They sum to 100.
const (
	WeightSector       = 30
	WeightTimezone     = 20
	WeightStage        = 20
	WeightAvailability = 20
	WeightExperience   = 10
)

type ComponentScores struct {
	Sector       int `json:"sector"`
	Timezone     int `json:"timezone"`
	Stage        int `json:"stage"`
	Availability int `json:"availability"`
	Experience   int `json:"experience"`
}

type MatchReasoning struct {
	Sector       string `json:"sector"`
	Timezone     string `json:"timezone"`
	Stage        string `json:"stage"`
	Availability string `json:"availability"`
	Experience   string `json:"experience"`
}

type MatchScore struct {
	FounderID        string          `json:"founderId"`
	AdvisorID        string          `json:"advisorId"`
	Components       ComponentScores `json:"components"`
	Overall          int             `json:"overall"`
	Reasoning        MatchReasoning  `json:"reasoning"`
	AlgorithmVersion string          `json:"algorithmVersion"`
	CalculatedAt     time.Time       `json:"calculatedAt"`
}

// IsValid reports whether the score can still be served from cache.
func (s MatchScore) IsValid(version string, ttl time.Duration, now time.Time) bool {
	if s.AlgorithmVersion != version {
		return false
	}
	return now.Sub(s.CalculatedAt) <= ttl
}
