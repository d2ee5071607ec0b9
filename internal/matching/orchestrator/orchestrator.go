// Package orchestrator runs recalculation jobs in the background and keeps a
// process-local registry of their status for polling.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/matching/cache"
	"advisor-matching/internal/matching/remote"
	"advisor-matching/internal/models"
)

// PopulationCounter reports how many users hold a role.
type PopulationCounter interface {
	Count(ctx context.Context, role models.Role) (int, error)
}

// JobObserver receives job outcomes. observability.Observability satisfies it.
type JobObserver interface {
	RecordJobProcessed(ctx context.Context, jobType, status string)
	RecordJobDuration(ctx context.Context, jobType string, duration time.Duration, status string)
	RecordJobProgress(ctx context.Context, jobType string, units int)
}

// Config bounds boundary invocations: CallTimeout applies to founder and
// advisor runs, BatchTimeout to full-population runs.
type Config struct {
	CallTimeout     time.Duration
	BatchTimeout    time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Minute
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = models.JobRetention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = models.JobCleanupInterval
	}
	return c
}

type entry struct {
	job  models.Job
	done chan struct{}
}

type Orchestrator struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	scorer   remote.Scorer
	counter  PopulationCounter
	cache    cache.ScoreCache
	observer JobObserver
	cfg      Config
	logger   logger.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

type Option func(*Orchestrator)

func WithObserver(o JobObserver) Option {
	return func(orc *Orchestrator) { orc.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(orc *Orchestrator) { orc.now = now }
}

func New(scorer remote.Scorer, counter PopulationCounter, scores cache.ScoreCache, cfg Config, log logger.Logger, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		jobs:    map[string]*entry{},
		scorer:  scorer,
		counter: counter,
		cache:   scores,
		cfg:     cfg.withDefaults(),
		logger:  log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle lets a caller await a job instead of polling GetJobStatus.
type Handle struct {
	JobID string
	done  <-chan struct{}
	orc   *Orchestrator
}

// Done is closed once the job reaches a terminal status.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job is terminal or ctx ends and returns the latest snapshot.
func (h *Handle) Wait(ctx context.Context) (models.Job, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		job, _ := h.orc.GetJobStatus(h.JobID)
		return job, ctx.Err()
	}
	return h.orc.GetJobStatus(h.JobID)
}

// StartFullRecalculation recomputes every founder through the scoring boundary.
func (o *Orchestrator) StartFullRecalculation() (*Handle, error) {
	return o.start(models.Job{Type: models.JobFullRecalculation}, o.runFull)
}

// StartFounderRecalculation drops the founder's cached set and recomputes it.
func (o *Orchestrator) StartFounderRecalculation(founderID string) (*Handle, error) {
	if strings.TrimSpace(founderID) == "" {
		return nil, fmt.Errorf("%w: founderId is required", apperrors.ErrInvalidRequest)
	}
	return o.start(models.Job{Type: models.JobFounderUpdate, FounderID: founderID}, func(ctx context.Context, id string) error {
		return o.runFounder(ctx, id, founderID)
	})
}

// StartAdvisorRecalculation recomputes the pairs of founders whose cached set
// contains the advisor. An advisor absent from the reverse index triggers a
// full invalidation and recalculation.
func (o *Orchestrator) StartAdvisorRecalculation(advisorID string) (*Handle, error) {
	if strings.TrimSpace(advisorID) == "" {
		return nil, fmt.Errorf("%w: advisorId is required", apperrors.ErrInvalidRequest)
	}
	return o.start(models.Job{Type: models.JobAdvisorUpdate, AdvisorID: advisorID}, func(ctx context.Context, id string) error {
		return o.runAdvisor(ctx, id, advisorID)
	})
}

func (o *Orchestrator) start(job models.Job, run func(ctx context.Context, id string) error) (*Handle, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, apperrors.NewJobStartFailedError(errors.New("orchestrator is closed"))
	}

	job.ID = uuid.New().String()
	job.Status = models.JobPending
	job.StartedAt = o.now().UTC()
	e := &entry{job: job, done: make(chan struct{})}
	o.jobs[job.ID] = e
	o.wg.Add(1)
	o.mu.Unlock()

	metrics.RecalculationJobs.WithLabelValues(string(models.JobPending)).Inc()
	o.logger.Info("Recalculation job created", map[string]interface{}{
		"jobId":     job.ID,
		"jobType":   job.Type,
		"founderId": job.FounderID,
		"advisorId": job.AdvisorID,
	})

	go func() {
		defer o.wg.Done()
		o.transition(job.ID, models.JobRunning, nil)
		err := run(o.ctx, job.ID)
		if err != nil {
			o.transition(job.ID, models.JobFailed, err)
			return
		}
		o.transition(job.ID, models.JobCompleted, nil)
	}()

	return &Handle{JobID: job.ID, done: e.done, orc: o}, nil
}

func (o *Orchestrator) runFull(ctx context.Context, id string) error {
	total, err := o.counter.Count(ctx, models.RoleFounder)
	if err != nil {
		return err
	}
	o.setTotal(id, total)

	callCtx := remote.WithProgress(ctx, func(done int) { o.advance(id, done) })
	resp, err := o.invoke(callCtx, remote.Request{BatchMode: true})
	if err != nil {
		return err
	}
	if resp.TotalFounders != nil {
		o.setTotal(id, *resp.TotalFounders)
	}
	o.complete(id)
	return nil
}

func (o *Orchestrator) runFounder(ctx context.Context, id, founderID string) error {
	o.setTotal(id, 1)
	if err := o.cache.Invalidate(ctx, founderID); err != nil {
		o.logger.Warn("Failed to invalidate founder scores", map[string]interface{}{
			"jobId":     id,
			"founderId": founderID,
			"error":     err,
		})
	}
	if _, err := o.invoke(ctx, remote.Request{FounderID: founderID}); err != nil {
		return err
	}
	o.complete(id)
	return nil
}

func (o *Orchestrator) runAdvisor(ctx context.Context, id, advisorID string) error {
	founders, err := o.cache.FoundersForAdvisor(ctx, advisorID)
	if err != nil {
		o.logger.Warn("Reverse index unavailable, falling back to full recalculation", map[string]interface{}{
			"jobId":     id,
			"advisorId": advisorID,
			"error":     err,
		})
		founders = nil
	}

	if len(founders) == 0 {
		if err := o.cache.InvalidateAll(ctx); err != nil {
			o.logger.Warn("Failed to clear score cache", map[string]interface{}{"jobId": id, "error": err})
		}
		return o.runFull(ctx, id)
	}

	o.setTotal(id, len(founders))
	for i, founderID := range founders {
		if _, err := o.invoke(ctx, remote.Request{FounderID: founderID, AdvisorID: advisorID}); err != nil {
			return err
		}
		o.advance(id, i+1)
	}
	return nil
}

func (o *Orchestrator) invoke(ctx context.Context, req remote.Request) (*remote.Response, error) {
	timeout := o.cfg.CallTimeout
	if req.BatchMode {
		timeout = o.cfg.BatchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return o.scorer.Invoke(ctx, req)
}

// GetJobStatus returns a snapshot of the job.
func (o *Orchestrator) GetJobStatus(id string) (models.Job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", apperrors.ErrJobNotFound, id)
	}
	return snapshot(e.job), nil
}

// ListJobs returns every tracked job, newest first.
func (o *Orchestrator) ListJobs() []models.Job {
	o.mu.RLock()
	jobs := make([]models.Job, 0, len(o.jobs))
	for _, e := range o.jobs {
		jobs = append(jobs, snapshot(e.job))
	}
	o.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].StartedAt.After(jobs[j].StartedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// Sweep removes terminal jobs that completed more than the retention ago.
func (o *Orchestrator) Sweep() int {
	cutoff := o.now().UTC().Add(-o.cfg.Retention)

	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for id, e := range o.jobs {
		if !e.job.IsTerminal() || e.job.CompletedAt == nil || e.job.CompletedAt.After(cutoff) {
			continue
		}
		delete(o.jobs, id)
		metrics.RecalculationJobs.WithLabelValues(string(e.job.Status)).Dec()
		removed++
	}
	if removed > 0 {
		o.logger.Info("Swept finished jobs", map[string]interface{}{"removed": removed, "remaining": len(o.jobs)})
	}
	return removed
}

// Run sweeps on every cleanup interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops accepting jobs, cancels running ones and waits for them to
// record their final status.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) setTotal(id string, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.jobs[id]; ok {
		e.job.Total = max(total, e.job.Progress, 0)
	}
}

// advance raises progress to done, capped at total. It never lowers progress.
func (o *Orchestrator) advance(id string, done int) {
	o.mu.Lock()
	e, ok := o.jobs[id]
	if !ok || e.job.IsTerminal() {
		o.mu.Unlock()
		return
	}
	next := min(done, e.job.Total)
	delta := next - e.job.Progress
	if delta > 0 {
		e.job.Progress = next
	}
	jobType := string(e.job.Type)
	o.mu.Unlock()

	if delta > 0 && o.observer != nil {
		o.observer.RecordJobProgress(o.ctx, jobType, delta)
	}
}

func (o *Orchestrator) complete(id string) {
	o.mu.RLock()
	var total int
	if e, ok := o.jobs[id]; ok {
		total = e.job.Total
	}
	o.mu.RUnlock()
	o.advance(id, total)
}

func (o *Orchestrator) transition(id string, status models.JobStatus, cause error) {
	o.mu.Lock()
	e, ok := o.jobs[id]
	if !ok || e.job.IsTerminal() {
		o.mu.Unlock()
		return
	}
	previous := e.job.Status
	e.job.Status = status
	if cause != nil {
		e.job.Error = cause.Error()
	}
	terminal := e.job.IsTerminal()
	if terminal {
		completed := o.now().UTC()
		e.job.CompletedAt = &completed
		defer close(e.done)
	}
	job := snapshot(e.job)
	o.mu.Unlock()

	metrics.RecalculationJobs.WithLabelValues(string(previous)).Dec()
	metrics.RecalculationJobs.WithLabelValues(string(status)).Inc()

	if !terminal {
		return
	}

	fields := map[string]interface{}{
		"jobId":    job.ID,
		"jobType":  job.Type,
		"progress": job.Progress,
		"total":    job.Total,
		"duration": job.CompletedAt.Sub(job.StartedAt).String(),
	}
	if cause != nil {
		fields["error"] = job.Error
		o.logger.Error("Recalculation job failed", fields)
	} else {
		o.logger.Info("Recalculation job completed", fields)
	}

	if o.observer != nil {
		o.observer.RecordJobProcessed(context.Background(), string(job.Type), string(job.Status))
		o.observer.RecordJobDuration(context.Background(), string(job.Type), job.CompletedAt.Sub(job.StartedAt), string(job.Status))
	}
}

func snapshot(j models.Job) models.Job {
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		j.CompletedAt = &completed
	}
	return j
}
