package calculatematchscore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"advisor-matching/internal/common/config"
	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/matching/cache"
	"advisor-matching/internal/matching/scoring"
	"advisor-matching/internal/models"
)

const TaskType = config.CalculateMatchScoreWorker

type ProfileResolver interface {
	Resolve(ctx context.Context, userID string) (*models.Profile, error)
}

// Handler scores one founder/advisor pair for a process that needs the
// number inline. It never writes assignments.
type Handler struct {
	config       *Config
	profiles     ProfileResolver
	scorer       *scoring.Scorer
	scores       cache.ScoreCache
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(cfg *Config, profiles ProfileResolver, scorer *scoring.Scorer, scores cache.ScoreCache, log logger.Logger) *Handler {
	if cfg == nil {
		cfg = LoadConfig(nil)
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       cfg,
		profiles:     profiles,
		scorer:       scorer,
		scores:       scores,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.process(ctx, job.Variables)
	if err != nil {
		return h.failJob(client, job, err)
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"jobKey": job.Key, "error": err})
		return err
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"jobKey": job.Key, "error": err})
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	return nil
}

// process decodes the job variables and scores the pair. A disabled worker
// completes without scoring.
func (h *Handler) process(ctx context.Context, variables string) (*Output, error) {
	if !h.config.Enabled {
		h.logger.Info("worker disabled by configuration", nil)
		return &Output{Status: StatusDisabled}, nil
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
	}
	return h.Execute(ctx, &input)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	founderID := strings.TrimSpace(input.FounderID)
	advisorID := strings.TrimSpace(input.AdvisorID)
	if founderID == "" || advisorID == "" {
		return nil, apperrors.NewValidationError("founderId and advisorId are required")
	}

	if !input.SkipCache {
		if score := h.cached(ctx, founderID, advisorID); score != nil {
			return h.output(score, true), nil
		}
	}

	founder, err := h.resolve(ctx, founderID)
	if err != nil {
		return nil, err
	}
	advisor, err := h.resolve(ctx, advisorID)
	if err != nil {
		return nil, err
	}

	score, err := h.scorer.Score(founder, advisor, h.now())
	if err != nil {
		return nil, apperrors.NewScoringFailedError(err)
	}

	if _, err := h.scores.Refresh(ctx, *score); err != nil {
		h.logger.Warn("failed to refresh cached score", map[string]interface{}{
			"founderId": founderID,
			"advisorId": advisorID,
			"error":     err,
		})
	}

	h.logger.Info("pair scored", map[string]interface{}{
		"founderId": founderID,
		"advisorId": advisorID,
		"overall":   score.Overall,
	})
	return h.output(score, false), nil
}

func (h *Handler) cached(ctx context.Context, founderID, advisorID string) *models.MatchScore {
	scores, err := h.scores.GetCached(ctx, founderID)
	if err != nil {
		h.logger.Warn("score cache unavailable", map[string]interface{}{"founderId": founderID, "error": err})
		return nil
	}
	for i := range scores {
		if scores[i].AdvisorID == advisorID {
			return &scores[i]
		}
	}
	return nil
}

func (h *Handler) resolve(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := h.profiles.Resolve(ctx, userID)
	if err != nil {
		return nil, apperrors.NewProfileResolutionFailedError(err)
	}
	if p == nil {
		return nil, apperrors.NewProfileNotFoundError(userID)
	}
	return p, nil
}

func (h *Handler) output(score *models.MatchScore, fromCache bool) *Output {
	return &Output{
		Status:           StatusScored,
		MatchScore:       score.Overall,
		MatchFactors:     score.Components,
		Reasoning:        score.Reasoning,
		MeetsThreshold:   score.Overall >= h.config.QualityThreshold,
		AlgorithmVersion: score.AlgorithmVersion,
		FromCache:        fromCache,
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) error {
	stdErr := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
	return nil
}
