package recalculatematches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"advisor-matching/internal/common/config"
	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/matching/orchestrator"
	"advisor-matching/internal/models"
)

const TaskType = config.RecalculateMatchesWorker

// ProfileMigrator copies a changed profile into the unified store before its
// matches are recomputed.
type ProfileMigrator interface {
	Migrate(ctx context.Context, userID string) (*models.Profile, error)
}

type JobStarter interface {
	StartFullRecalculation() (*orchestrator.Handle, error)
	StartFounderRecalculation(founderID string) (*orchestrator.Handle, error)
	StartAdvisorRecalculation(advisorID string) (*orchestrator.Handle, error)
	GetJobStatus(id string) (models.Job, error)
}

type Handler struct {
	config       *Config
	profiles     ProfileMigrator
	jobs         JobStarter
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(cfg *Config, profiles ProfileMigrator, jobs JobStarter, log logger.Logger) (*Handler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       cfg,
		profiles:     profiles,
		jobs:         jobs,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

	if !h.config.Enabled {
		h.logger.Info("worker disabled by configuration", nil)
		return h.completeJob(client, job, &Output{JobStatus: "disabled"})
	}

	input, err := parseInput(job.Variables)
	if err != nil {
		return h.failJob(client, job, err)
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return h.failJob(client, job, err)
	}

	if err := h.completeJob(client, job, output); err != nil {
		return err
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	return nil
}

// Execute migrates the updated profile when the trigger names one and starts
// the matching recalculation it calls for.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	var (
		handle *orchestrator.Handle
		err    error
	)
	switch input.Trigger {
	case TriggerFounderProfileUpdated:
		if err := h.migrate(ctx, input.UserID, models.RoleFounder); err != nil {
			return nil, err
		}
		handle, err = h.jobs.StartFounderRecalculation(input.UserID)
	case TriggerAdvisorProfileUpdated:
		if err := h.migrate(ctx, input.UserID, models.RoleAdvisor); err != nil {
			return nil, err
		}
		handle, err = h.jobs.StartAdvisorRecalculation(input.UserID)
	case TriggerScheduled:
		handle, err = h.jobs.StartFullRecalculation()
	default:
		return nil, apperrors.NewInvalidTriggerError(fmt.Sprintf("unknown trigger %q", input.Trigger))
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidRequest) {
			return nil, apperrors.NewInvalidTriggerError(err.Error())
		}
		return nil, err
	}

	job, err := h.snapshot(ctx, handle)
	if err != nil {
		return nil, err
	}

	h.logger.Info("recalculation started", map[string]interface{}{
		"trigger":   input.Trigger,
		"userId":    input.UserID,
		"jobId":     job.ID,
		"jobStatus": string(job.Status),
	})

	return &Output{
		JobID:     job.ID,
		JobType:   string(job.Type),
		JobStatus: string(job.Status),
		Progress:  job.Progress,
		Total:     job.Total,
	}, nil
}

func (h *Handler) migrate(ctx context.Context, userID string, role models.Role) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewInvalidTriggerError("userId is required for profile update triggers")
	}
	p, err := h.profiles.Migrate(ctx, userID)
	if err != nil {
		return err
	}
	if p.Role != role {
		return apperrors.NewInvalidTriggerError(fmt.Sprintf("user %s has role %q, trigger expects %q", userID, p.Role, role))
	}
	return nil
}

// snapshot returns the job once terminal when AwaitJob is set. A wait cut
// short by the worker timeout reports whatever status the job reached.
func (h *Handler) snapshot(ctx context.Context, handle *orchestrator.Handle) (models.Job, error) {
	if !h.config.AwaitJob {
		return h.jobs.GetJobStatus(handle.JobID)
	}
	job, err := handle.Wait(ctx)
	if err != nil && ctx.Err() == nil {
		return models.Job{}, err
	}
	if job.Status == models.JobFailed {
		return job, apperrors.NewScoringBoundaryFailedError(errors.New(job.Error))
	}
	return job, nil
}

func parseInput(variables string) (*Input, error) {
	raw := []byte(variables)
	if strings.TrimSpace(variables) == "" {
		raw = []byte("{}")
	}
	result, err := inputSchema.ValidateBytes(raw)
	if err != nil {
		return nil, apperrors.NewInvalidTriggerError(err.Error())
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewInvalidTriggerError(err.Error())
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, apperrors.NewInvalidTriggerError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Commands are sent on a fresh context: an await cut short by the worker
// timeout must still report back to the engine.
func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return err
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return err
	}
	return nil
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) error {
	stdErr := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
	return nil
}
