package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/matching/orchestrator"
	"advisor-matching/internal/models"
)

type JobService interface {
	StartFullRecalculation() (*orchestrator.Handle, error)
	StartFounderRecalculation(founderID string) (*orchestrator.Handle, error)
	StartAdvisorRecalculation(advisorID string) (*orchestrator.Handle, error)
	GetJobStatus(id string) (models.Job, error)
	ListJobs() []models.Job
}

type MatchReader interface {
	CalculateFounderMatches(ctx context.Context, founderID string, force bool) ([]models.MatchScore, error)
}

type AssignmentReader interface {
	ListActiveForFounder(ctx context.Context, founderID string) ([]models.Assignment, error)
}

type ProfileMigrator interface {
	Migrate(ctx context.Context, userID string) (*models.Profile, error)
}

type MatchingHandler struct {
	jobs        JobService
	matches     MatchReader
	assignments AssignmentReader
	profiles    ProfileMigrator
}

func NewMatchingHandler(jobs JobService, matches MatchReader, assignments AssignmentReader, profiles ProfileMigrator) *MatchingHandler {
	return &MatchingHandler{jobs: jobs, matches: matches, assignments: assignments, profiles: profiles}
}

type recalculateRequest struct {
	FounderID string `json:"founderId"`
	AdvisorID string `json:"advisorId"`
}

// POST /api/v1/matching/recalculate
func (h *MatchingHandler) Recalculate(c *gin.Context) {
	var req recalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	req.FounderID = strings.TrimSpace(req.FounderID)
	req.AdvisorID = strings.TrimSpace(req.AdvisorID)

	var (
		handle *orchestrator.Handle
		err    error
	)
	switch {
	case req.FounderID != "" && req.AdvisorID != "":
		err = fmt.Errorf("%w: founderId and advisorId are mutually exclusive", apperrors.ErrInvalidRequest)
	case req.FounderID != "":
		handle, err = h.jobs.StartFounderRecalculation(req.FounderID)
	case req.AdvisorID != "":
		handle, err = h.jobs.StartAdvisorRecalculation(req.AdvisorID)
	default:
		handle, err = h.jobs.StartFullRecalculation()
	}
	if err != nil {
		respondFailure(c, err)
		return
	}

	job, err := h.jobs.GetJobStatus(handle.JobID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/v1/matching/jobs
func (h *MatchingHandler) ListJobs(c *gin.Context) {
	jobs := h.jobs.ListJobs()
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// GET /api/v1/matching/jobs/:id
func (h *MatchingHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJobStatus(c.Param("id"))
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// GET /api/v1/founders/:id/matches?force=true
func (h *MatchingHandler) FounderMatches(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_force", err)
			return
		}
		force = v
	}

	founderID := c.Param("id")
	matches, err := h.matches.CalculateFounderMatches(c.Request.Context(), founderID, force)
	if err != nil {
		respondFailure(c, err)
		return
	}
	if matches == nil {
		matches = []models.MatchScore{}
	}
	c.JSON(http.StatusOK, gin.H{"founderId": founderID, "matches": matches, "count": len(matches)})
}

// GET /api/v1/founders/:id/assignments
func (h *MatchingHandler) FounderAssignments(c *gin.Context) {
	founderID := c.Param("id")
	assignments, err := h.assignments.ListActiveForFounder(c.Request.Context(), founderID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	if assignments == nil {
		assignments = []models.Assignment{}
	}
	c.JSON(http.StatusOK, gin.H{"founderId": founderID, "assignments": assignments})
}

// POST /api/v1/profiles/:id/migrate
func (h *MatchingHandler) MigrateProfile(c *gin.Context) {
	p, err := h.profiles.Migrate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}
