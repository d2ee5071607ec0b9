// Package assignment turns high-scoring founder/advisor pairs into durable
// assignment records.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"advisor-matching/internal/common/aws"
	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/models"
)

// EventPublisher is notified after an assignment is created.
type EventPublisher interface {
	PublishAssignmentCreated(ctx context.Context, event aws.AssignmentEvent) error
}

// Result counts what happened to each candidate.
type Result struct {
	Created []models.Assignment `json:"created,omitempty"`
	Reused  int                 `json:"reused"`
	Skipped int                 `json:"skipped"`
	Failed  int                 `json:"failed"`
}

type Materializer struct {
	store     Store
	threshold int
	publisher EventPublisher
	logger    logger.Logger
	now       func() time.Time
}

type Option func(*Materializer)

func WithPublisher(p EventPublisher) Option {
	return func(m *Materializer) { m.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

func NewMaterializer(store Store, threshold int, log logger.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		store:     store,
		threshold: threshold,
		logger:    log.WithFields(map[string]interface{}{"component": "assignment-materializer"}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize ensures an active assignment and a criteria score row exist for
// every candidate with overall >= threshold. Failures on one candidate are
// logged and counted; the rest are still processed.
func (m *Materializer) Materialize(ctx context.Context, founderID string, ranked []models.MatchScore) (*Result, error) {
	res := &Result{}
	for _, score := range ranked {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if score.Overall < m.threshold {
			res.Skipped++
			continue
		}
		if score.FounderID != founderID {
			m.logger.Warn("Skipping candidate for another founder", map[string]interface{}{
				"founderId":          founderID,
				"candidateFounderId": score.FounderID,
				"advisorId":          score.AdvisorID,
			})
			res.Skipped++
			continue
		}

		a, created, err := m.ensure(ctx, score)
		if err != nil {
			res.Failed++
			metrics.AssignmentsMaterialized.WithLabelValues("failed").Inc()
			m.logger.Error("Failed to materialize assignment", map[string]interface{}{
				"founderId": founderID,
				"advisorId": score.AdvisorID,
				"overall":   score.Overall,
				"error":     err,
			})
			continue
		}
		if created {
			res.Created = append(res.Created, *a)
			metrics.AssignmentsMaterialized.WithLabelValues("created").Inc()
			m.publish(ctx, a)
		} else {
			res.Reused++
			metrics.AssignmentsMaterialized.WithLabelValues("reused").Inc()
		}
	}

	if len(res.Created) > 0 || res.Failed > 0 {
		m.logger.Info("Assignments materialized", map[string]interface{}{
			"founderId": founderID,
			"created":   len(res.Created),
			"reused":    res.Reused,
			"skipped":   res.Skipped,
			"failed":    res.Failed,
		})
	}
	return res, nil
}

// ensure finds or creates the pair's assignment, then upserts its score row.
// A unique violation on insert means another writer won; its row is reused.
func (m *Materializer) ensure(ctx context.Context, score models.MatchScore) (*models.Assignment, bool, error) {
	existing, err := m.store.FindActive(ctx, score.FounderID, score.AdvisorID)
	if err != nil {
		return nil, false, err
	}

	created := false
	if existing == nil {
		now := m.now().UTC()
		candidate := &models.Assignment{
			ID:         uuid.New().String(),
			FounderID:  score.FounderID,
			AdvisorID:  score.AdvisorID,
			MatchScore: score.Overall,
			Status:     models.AssignmentPending,
			AssignedBy: models.AssignedByAlgorithm,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		switch err := m.store.Insert(ctx, candidate); {
		case err == nil:
			existing, created = candidate, true
		case errors.Is(err, apperrors.ErrAssignmentExists):
			existing, err = m.store.FindActive(ctx, score.FounderID, score.AdvisorID)
			if err != nil {
				return nil, false, err
			}
			if existing == nil {
				return nil, false, fmt.Errorf("assignment %s/%s reported as existing but not found", score.FounderID, score.AdvisorID)
			}
		default:
			return nil, false, err
		}
	}

	if err := m.store.UpsertCriteriaScores(ctx, existing.ID, score); err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

func (m *Materializer) publish(ctx context.Context, a *models.Assignment) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.PublishAssignmentCreated(ctx, aws.AssignmentEvent{
		AssignmentID: a.ID,
		FounderID:    a.FounderID,
		AdvisorID:    a.AdvisorID,
		MatchScore:   a.MatchScore,
		AssignedBy:   a.AssignedBy,
	})
	if err != nil {
		m.logger.Warn("Failed to publish assignment event", map[string]interface{}{
			"assignmentId": a.ID,
			"error":        err,
		})
	}
}
