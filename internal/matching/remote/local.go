package remote

import (
	"context"
	"strconv"
	"time"

	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/matching/matcher"
	"advisor-matching/internal/models"
)

// Engine is the compute surface LocalScorer delegates to.
type Engine interface {
	CalculateFounderMatches(ctx context.Context, founderID string, force bool) ([]models.MatchScore, error)
	RecalculatePair(ctx context.Context, founderID, advisorID string) (*models.MatchScore, error)
	RecalculateAll(ctx context.Context, progress matcher.ProgressFunc) (int, error)
}

// LocalScorer runs the boundary in-process. Founder requests always
// recompute; cached reads go through the matcher directly.
type LocalScorer struct {
	engine Engine
	logger logger.Logger
}

func NewLocalScorer(engine Engine, log logger.Logger) *LocalScorer {
	return &LocalScorer{
		engine: engine,
		logger: log.WithFields(map[string]interface{}{"component": "local-scorer"}),
	}
}

func (s *LocalScorer) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, &BoundaryError{Message: err.Error(), cause: err}
	}

	start := time.Now()
	resp, err := s.invoke(ctx, req)
	metrics.ScoringBoundaryCalls.WithLabelValues("local", strconv.FormatBool(err == nil)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("Scoring request failed", map[string]interface{}{
			"mode":      req.Mode(),
			"founderId": req.FounderID,
			"advisorId": req.AdvisorID,
			"error":     err,
		})
		return nil, &BoundaryError{Message: err.Error(), cause: err}
	}
	return resp, nil
}

func (s *LocalScorer) invoke(ctx context.Context, req Request) (*Response, error) {
	switch req.Mode() {
	case ModeBatch:
		total, err := s.engine.RecalculateAll(ctx, ProgressFrom(ctx))
		if err != nil {
			return nil, err
		}
		return &Response{Success: true, TotalFounders: &total}, nil

	case ModePair:
		score, err := s.engine.RecalculatePair(ctx, req.FounderID, req.AdvisorID)
		if err != nil {
			return nil, err
		}
		resp := &Response{Success: true, Matches: []models.MatchScore{}}
		if score != nil {
			resp.Matches = append(resp.Matches, *score)
		}
		return resp, nil

	default:
		matches, err := s.engine.CalculateFounderMatches(ctx, req.FounderID, true)
		if err != nil {
			return nil, err
		}
		return &Response{Success: true, Matches: matches}, nil
	}
}
