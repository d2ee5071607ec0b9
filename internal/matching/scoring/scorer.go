// Package scoring computes the five-component founder/advisor compatibility score.
package scoring

import (
	"fmt"
	"strings"
	"time"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/models"
)

// Neutral is the score given to a component whose inputs are missing or malformed.
const Neutral = 50

// unconstrained is used when neither party declares a timezone or availability.
const unconstrained = 75

// Scorer stamps computed scores with an algorithm version.
type Scorer struct {
	version string
}

func NewScorer(version string) *Scorer {
	if version == "" {
		version = models.AlgorithmVersion
	}
	return &Scorer{version: version}
}

func (s *Scorer) Version() string {
	return s.version
}

// Score is pure: it performs no I/O and depends only on its arguments.
// A nil profile or a profile with the wrong role returns ErrInvalidProfile.
func (s *Scorer) Score(founder, advisor *models.Profile, at time.Time) (*models.MatchScore, error) {
	if founder == nil || advisor == nil {
		return nil, fmt.Errorf("%w: nil profile", apperrors.ErrInvalidProfile)
	}
	if founder.Role != models.RoleFounder {
		return nil, fmt.Errorf("%w: %s has role %q, want founder", apperrors.ErrInvalidProfile, founder.ID, founder.Role)
	}
	if advisor.Role != models.RoleAdvisor {
		return nil, fmt.Errorf("%w: %s has role %q, want advisor", apperrors.ErrInvalidProfile, advisor.ID, advisor.Role)
	}

	f := founder.Founder
	if f == nil {
		f = &models.FounderAttributes{}
	}
	a := advisor.Advisor
	if a == nil {
		a = &models.AdvisorAttributes{}
	}

	var c models.ComponentScores
	var r models.MatchReasoning
	c.Sector, r.Sector = calculateSectorFit(f.Sector, a.Expertise)
	c.Timezone, r.Timezone = calculateTimezoneFit(f.Timezone, a.Timezone)
	c.Stage, r.Stage = calculateStageFit(f.Stage, f.Challenge, a.ChallengePreference)
	c.Availability, r.Availability = calculateAvailabilityFit(f, a)
	c.Experience, r.Experience = calculateExperienceFit(f.Stage, a.ExperienceLevel, a.YearsExperience)

	return &models.MatchScore{
		FounderID:        founder.ID,
		AdvisorID:        advisor.ID,
		Components:       c,
		Overall:          Overall(c),
		Reasoning:        r,
		AlgorithmVersion: s.version,
		CalculatedAt:     at.UTC(),
	}, nil
}

// Overall combines the components with fixed percent weights, rounding half up.
func Overall(c models.ComponentScores) int {
	sum := models.WeightSector*clamp(c.Sector) +
		models.WeightTimezone*clamp(c.Timezone) +
		models.WeightStage*clamp(c.Stage) +
		models.WeightAvailability*clamp(c.Availability) +
		models.WeightExperience*clamp(c.Experience)
	return (sum + 50) / 100
}

func clamp(v int) int {
	return min(max(v, 0), 100)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ", "/", " ", "&", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func tokens(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.Fields(normalize(s)) {
		if len(t) >= 3 {
			out[t] = struct{}{}
		}
	}
	return out
}

func sharesToken(a, b string) bool {
	ta := tokens(a)
	for t := range tokens(b) {
		if _, ok := ta[t]; ok {
			return true
		}
	}
	return false
}

var generalistTerms = map[string]bool{
	"generalist": true, "general": true, "all": true, "any": true,
	"all sectors": true, "industry agnostic": true, "sector agnostic": true,
}

func calculateSectorFit(sector string, expertise []string) (int, string) {
	sector = normalize(sector)
	if sector == "" || len(expertise) == 0 {
		return Neutral, "Sector or advisor expertise not declared"
	}

	best, reason := 20, fmt.Sprintf("No overlap between %s and advisor expertise", sector)
	for _, e := range expertise {
		e = normalize(e)
		switch {
		case e == "":
			continue
		case e == sector:
			return 100, fmt.Sprintf("Advisor has direct %s expertise", sector)
		case sharesToken(e, sector):
			if best < 75 {
				best, reason = 75, fmt.Sprintf("Advisor expertise in %s is related to %s", e, sector)
			}
		case generalistTerms[e]:
			if best < 60 {
				best, reason = 60, "Advisor is a cross-sector generalist"
			}
		}
	}
	return best, reason
}

func calculateTimezoneFit(founderTZ, advisorTZ string) (int, string) {
	if strings.TrimSpace(founderTZ) == "" && strings.TrimSpace(advisorTZ) == "" {
		return unconstrained, "Neither party declared a timezone"
	}
	fo, ok1 := offsetMinutes(founderTZ)
	ao, ok2 := offsetMinutes(advisorTZ)
	if !ok1 || !ok2 {
		return Neutral, "Timezone missing or unrecognized"
	}

	diff := fo - ao
	if diff < 0 {
		diff = -diff
	}
	diff = min(diff, 24*60-diff)

	hours := float64(diff) / 60
	switch {
	case diff == 0:
		return 100, "Same timezone"
	case diff <= 60:
		return 90, fmt.Sprintf("%.1fh apart", hours)
	case diff <= 180:
		return 75, fmt.Sprintf("%.1fh apart", hours)
	case diff <= 360:
		return 50, fmt.Sprintf("%.1fh apart, limited shared hours", hours)
	case diff <= 540:
		return 30, fmt.Sprintf("%.1fh apart, little shared working time", hours)
	}
	return 15, fmt.Sprintf("%.1fh apart, opposite working hours", hours)
}

var stageOrder = map[string]int{
	"idea": 0, "ideation": 0, "concept": 0,
	"pre seed": 1, "preseed": 1, "mvp": 1,
	"seed": 2,
	"series a": 3, "a": 3,
	"series b": 4, "b": 4,
	"series c": 5, "growth": 5, "scale": 5, "scaleup": 5, "late": 5, "later": 5,
}

var anyStage = map[string]bool{
	"any": true, "all": true, "flexible": true, "no preference": true, "any stage": true, "all stages": true,
}

func stageRank(s string) (int, bool) {
	n := normalize(s)
	n = strings.TrimSuffix(n, " stage")
	rank, ok := stageOrder[n]
	return rank, ok
}

func calculateStageFit(stage, challenge, preference string) (int, string) {
	if normalize(stage) == "" || normalize(preference) == "" {
		return Neutral, "Stage or advisor preference not declared"
	}
	if anyStage[normalize(preference)] {
		return 80, "Advisor works with companies at any stage"
	}

	fr, fok := stageRank(stage)
	pr, pok := stageRank(preference)
	switch {
	case fok && pok:
		dist := fr - pr
		if dist < 0 {
			dist = -dist
		}
		switch dist {
		case 0:
			return 100, fmt.Sprintf("Advisor prefers %s companies", normalize(preference))
		case 1:
			return 70, "Advisor prefers an adjacent stage"
		case 2:
			return 40, "Advisor prefers a stage two steps away"
		}
		return 20, "Advisor prefers a distant stage"
	case !pok && sharesToken(challenge, preference):
		return 85, fmt.Sprintf("Advisor focuses on %s", normalize(preference))
	case !fok && !pok && normalize(stage) == normalize(preference):
		return 100, "Stage matches advisor preference"
	}
	return Neutral, "Stage preference could not be compared"
}

func calculateAvailabilityFit(f *models.FounderAttributes, a *models.AdvisorAttributes) (int, string) {
	fo, _ := offsetMinutes(f.Timezone)
	ao, _ := offsetMinutes(a.Timezone)
	fw := weeklyIntervals(f.Availability, fo)
	aw := weeklyIntervals(a.Availability, ao)

	switch {
	case len(fw) == 0 && len(aw) == 0:
		return unconstrained, "Neither party declared availability"
	case len(fw) == 0 || len(aw) == 0:
		return Neutral, "Availability declared by one party only"
	}

	overlap := overlapMinutes(fw, aw)
	if overlap == 0 {
		return 20, "No overlapping availability"
	}
	smaller := min(totalMinutes(fw), totalMinutes(aw))
	ratio := min(float64(overlap)/float64(smaller), 1)
	return 20 + int(80*ratio+0.5), fmt.Sprintf("%d shared minutes per week", overlap)
}

var experienceRanks = map[string]int{
	"junior": 1, "entry": 1, "beginner": 1,
	"mid": 2, "mid level": 2, "intermediate": 2,
	"senior": 3, "expert": 3, "advanced": 3,
	"executive": 4, "c level": 4, "veteran": 4, "serial founder": 4,
}

func experienceRank(level string, years int) (int, bool) {
	if rank, ok := experienceRanks[normalize(level)]; ok {
		return rank, true
	}
	switch {
	case years <= 0:
		return 0, false
	case years < 3:
		return 1, true
	case years < 7:
		return 2, true
	case years < 15:
		return 3, true
	}
	return 4, true
}

// requiredExperience maps a founder stage to the experience rank it needs.
func requiredExperience(stage string) (int, bool) {
	rank, ok := stageRank(stage)
	if !ok {
		return 0, false
	}
	switch {
	case rank <= 2:
		return 2, true
	case rank <= 4:
		return 3, true
	}
	return 4, true
}

func calculateExperienceFit(stage, level string, years int) (int, string) {
	have, ok1 := experienceRank(level, years)
	need, ok2 := requiredExperience(stage)
	if !ok1 || !ok2 {
		return Neutral, "Experience or stage needs unknown"
	}
	switch {
	case have >= need:
		return 100, "Advisor experience covers this stage"
	case have == need-1:
		return 65, "Advisor experience slightly below stage needs"
	}
	return 35, "Advisor experience well below stage needs"
}
