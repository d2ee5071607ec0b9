// Package matcher is the in-process compute engine: it resolves profiles,
// scores every founder/advisor pair, keeps the score cache current and hands
// qualifying pairs to the assignment materializer.
package matcher

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/matching/assignment"
	"advisor-matching/internal/matching/cache"
	"advisor-matching/internal/matching/scoring"
	"advisor-matching/internal/models"
)

// ProfileSource is the subset of profile.Resolver the matcher reads from.
type ProfileSource interface {
	Resolve(ctx context.Context, userID string) (*models.Profile, error)
	ListIDs(ctx context.Context, role models.Role) ([]string, error)
}

type AssignmentWriter interface {
	Materialize(ctx context.Context, founderID string, ranked []models.MatchScore) (*assignment.Result, error)
}

// ProgressFunc receives the number of founders processed so far.
type ProgressFunc func(done int)

type Matcher struct {
	profiles      ProfileSource
	scorer        *scoring.Scorer
	cache         cache.ScoreCache
	assignments   AssignmentWriter
	logger        logger.Logger
	now           func() time.Time
	maxCandidates int
	flight        singleflight.Group
}

type Option func(*Matcher)

func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// WithMaxCandidates keeps only the best n advisors per founder. Zero keeps all.
func WithMaxCandidates(n int) Option {
	return func(m *Matcher) { m.maxCandidates = n }
}

func New(profiles ProfileSource, scorer *scoring.Scorer, scores cache.ScoreCache, assignments AssignmentWriter, log logger.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		profiles:    profiles,
		scorer:      scorer,
		cache:       scores,
		assignments: assignments,
		logger:      log.WithFields(map[string]interface{}{"component": "matcher"}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CalculateFounderMatches returns the founder's ranked candidates, best first.
// Without force a valid cached set is returned as is. A missing founder yields
// an empty result.
func (m *Matcher) CalculateFounderMatches(ctx context.Context, founderID string, force bool) ([]models.MatchScore, error) {
	if !force {
		cached, err := m.cache.GetCached(ctx, founderID)
		if err != nil {
			m.logger.Warn("Score cache read failed, computing", map[string]interface{}{
				"founderId": founderID,
				"error":     err,
			})
		}
		if cached != nil {
			return cached, nil
		}
	}

	return m.compute(ctx, founderID, force, nil)
}

// compute collapses concurrent computations for the same founder. A nil
// advisors slice makes the computation load the advisor population itself.
func (m *Matcher) compute(ctx context.Context, founderID string, force bool, advisors []*models.Profile) ([]models.MatchScore, error) {
	v, err, shared := m.flight.Do(founderID, func() (interface{}, error) {
		return m.computeFounder(ctx, founderID, force, advisors)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("Joined in-flight computation", map[string]interface{}{"founderId": founderID})
	}
	return v.([]models.MatchScore), nil
}

func (m *Matcher) computeFounder(ctx context.Context, founderID string, force bool, advisors []*models.Profile) ([]models.MatchScore, error) {
	founder, err := m.profiles.Resolve(ctx, founderID)
	if err != nil {
		return nil, fmt.Errorf("resolve founder %s: %w", founderID, err)
	}
	if founder == nil {
		m.logger.Info("Founder not found, nothing to match", map[string]interface{}{"founderId": founderID})
		return []models.MatchScore{}, nil
	}
	if founder.Role != models.RoleFounder {
		return nil, fmt.Errorf("%w: user %s has role %q", apperrors.ErrInvalidProfile, founderID, founder.Role)
	}

	if advisors == nil {
		if advisors, err = m.loadAdvisors(ctx); err != nil {
			return nil, err
		}
	}

	at := m.now()
	scores := make([]models.MatchScore, 0, len(advisors))
	for _, advisor := range advisors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if score, ok := m.scorePair(founder, advisor, at); ok {
			scores = append(scores, *score)
		}
	}

	cache.SortScores(scores)
	if m.maxCandidates > 0 && len(scores) > m.maxCandidates {
		scores = scores[:m.maxCandidates]
	}

	if force {
		if err := m.cache.Invalidate(ctx, founderID); err != nil {
			m.logger.Warn("Failed to invalidate founder scores", map[string]interface{}{
				"founderId": founderID,
				"error":     err,
			})
		}
	}
	if err := m.cache.Put(ctx, scores); err != nil {
		m.logger.Warn("Failed to cache founder scores", map[string]interface{}{
			"founderId": founderID,
			"error":     err,
		})
	}

	if _, err := m.assignments.Materialize(ctx, founderID, scores); err != nil {
		return nil, fmt.Errorf("materialize assignments for %s: %w", founderID, err)
	}

	m.logger.Info("Founder matches calculated", map[string]interface{}{
		"founderId":  founderID,
		"advisors":   len(advisors),
		"candidates": len(scores),
		"forced":     force,
	})
	return scores, nil
}

// loadAdvisors resolves every advisor once. Advisors that fail to resolve,
// no longer exist or changed role are logged and left out.
func (m *Matcher) loadAdvisors(ctx context.Context) ([]*models.Profile, error) {
	ids, err := m.profiles.ListIDs(ctx, models.RoleAdvisor)
	if err != nil {
		return nil, fmt.Errorf("list advisors: %w", err)
	}

	advisors := make([]*models.Profile, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		advisor, err := m.profiles.Resolve(ctx, id)
		if err != nil {
			metrics.ScoresComputed.WithLabelValues("error").Inc()
			m.logger.Warn("Failed to resolve advisor", map[string]interface{}{
				"advisorId": id,
				"error":     err,
			})
			continue
		}
		if advisor == nil || advisor.Role != models.RoleAdvisor {
			metrics.ScoresComputed.WithLabelValues("skipped").Inc()
			continue
		}
		advisors = append(advisors, advisor)
	}
	return advisors, nil
}

func (m *Matcher) scorePair(founder, advisor *models.Profile, at time.Time) (*models.MatchScore, bool) {
	score, err := m.scorer.Score(founder, advisor, at)
	if err != nil {
		metrics.ScoresComputed.WithLabelValues("error").Inc()
		m.logger.Error("Failed to score pair", map[string]interface{}{
			"founderId": founder.ID,
			"advisorId": advisor.ID,
			"error":     err,
		})
		return nil, false
	}

	metrics.ScoresComputed.WithLabelValues("scored").Inc()
	metrics.ScoreDistribution.Observe(float64(score.Overall))
	return score, true
}

// RecalculatePair rescores one pair, refreshes its cache entry when the
// founder has a cached set and materializes the pair. It returns nil when
// either user does not exist.
func (m *Matcher) RecalculatePair(ctx context.Context, founderID, advisorID string) (*models.MatchScore, error) {
	founder, err := m.profiles.Resolve(ctx, founderID)
	if err != nil {
		return nil, fmt.Errorf("resolve founder %s: %w", founderID, err)
	}
	advisor, err := m.profiles.Resolve(ctx, advisorID)
	if err != nil {
		return nil, fmt.Errorf("resolve advisor %s: %w", advisorID, err)
	}
	if founder == nil || advisor == nil {
		return nil, nil
	}

	score, err := m.scorer.Score(founder, advisor, m.now())
	if err != nil {
		return nil, err
	}
	metrics.ScoresComputed.WithLabelValues("scored").Inc()
	metrics.ScoreDistribution.Observe(float64(score.Overall))

	if _, err := m.cache.Refresh(ctx, *score); err != nil {
		m.logger.Warn("Failed to refresh cached pair", map[string]interface{}{
			"founderId": founderID,
			"advisorId": advisorID,
			"error":     err,
		})
	}

	if _, err := m.assignments.Materialize(ctx, founderID, []models.MatchScore{*score}); err != nil {
		return nil, fmt.Errorf("materialize assignment for %s/%s: %w", founderID, advisorID, err)
	}
	return score, nil
}

// RecalculateAll force-recomputes every founder against one resolved advisor
// population and returns how many founders there were. A founder that fails
// is logged and counted, not fatal.
func (m *Matcher) RecalculateAll(ctx context.Context, progress ProgressFunc) (int, error) {
	founderIDs, err := m.profiles.ListIDs(ctx, models.RoleFounder)
	if err != nil {
		return 0, fmt.Errorf("list founders: %w", err)
	}
	if len(founderIDs) == 0 {
		return 0, nil
	}

	advisors, err := m.loadAdvisors(ctx)
	if err != nil {
		return len(founderIDs), err
	}

	failed := 0
	for i, founderID := range founderIDs {
		if err := ctx.Err(); err != nil {
			return len(founderIDs), err
		}
		if _, err := m.compute(ctx, founderID, true, advisors); err != nil {
			failed++
			m.logger.Error("Founder recalculation failed", map[string]interface{}{
				"founderId": founderID,
				"error":     err,
			})
		}
		if progress != nil {
			progress(i + 1)
		}
	}

	m.logger.Info("Full recalculation finished", map[string]interface{}{
		"founders": len(founderIDs),
		"advisors": len(advisors),
		"failed":   failed,
	})
	return len(founderIDs), nil
}
