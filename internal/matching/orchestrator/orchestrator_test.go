package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/matching/remote"
	"advisor-matching/internal/models"
)

// ==========================
// Test Helpers
// ==========================

type fakeScorer struct {
	mu       sync.Mutex
	requests []remote.Request
	gate     chan struct{}
	progress []int
	total    *int
	err      error
}

func (s *fakeScorer) Invoke(ctx context.Context, req remote.Request) (*remote.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if req.BatchMode {
		if report := remote.ProgressFrom(ctx); report != nil {
			for _, p := range s.progress {
				report(p)
			}
		}
		return &remote.Response{Success: true, TotalFounders: s.total}, nil
	}
	return &remote.Response{Success: true}, nil
}

func (s *fakeScorer) seen() []remote.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Request(nil), s.requests...)
}

type fakeCounter struct {
	count int
	err   error
}

func (c fakeCounter) Count(context.Context, models.Role) (int, error) {
	return c.count, c.err
}

type fakeCache struct {
	mu            sync.Mutex
	founders      map[string][]string
	invalidated   []string
	invalidateAll int
	indexErr      error
}

func (c *fakeCache) GetCached(context.Context, string) ([]models.MatchScore, error) { return nil, nil }
func (c *fakeCache) Put(context.Context, []models.MatchScore) error                 { return nil }
func (c *fakeCache) Refresh(context.Context, models.MatchScore) (bool, error)       { return false, nil }

func (c *fakeCache) Invalidate(_ context.Context, founderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, founderID)
	return nil
}

func (c *fakeCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateAll++
	return nil
}

func (c *fakeCache) FoundersForAdvisor(_ context.Context, advisorID string) ([]string, error) {
	if c.indexErr != nil {
		return nil, c.indexErr
	}
	return c.founders[advisorID], nil
}

type recordingObserver struct {
	mu        sync.Mutex
	processed []string
	units     int
}

func (r *recordingObserver) RecordJobProcessed(_ context.Context, jobType, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, jobType+":"+status)
}

func (r *recordingObserver) RecordJobDuration(context.Context, string, time.Duration, string) {}

func (r *recordingObserver) RecordJobProgress(_ context.Context, _ string, units int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units += units
}

func newTestOrchestrator(t *testing.T, scorer remote.Scorer, counter PopulationCounter, c *fakeCache, opts ...Option) *Orchestrator {
	t.Helper()
	if c == nil {
		c = &fakeCache{founders: map[string][]string{}}
	}
	o := New(scorer, counter, c, Config{CallTimeout: time.Second}, logger.NewTestLogger(t), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = o.Close(ctx)
	})
	return o
}

func wait(t *testing.T, h *Handle) models.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := h.Wait(ctx)
	require.NoError(t, err)
	return job
}

// ==========================
// Lifecycle
// ==========================

func TestFullRecalculation_EmptyPopulationCompletes(t *testing.T) {
	zero := 0
	o := newTestOrchestrator(t, &fakeScorer{total: &zero}, fakeCounter{count: 0}, nil)

	h, err := o.StartFullRecalculation()
	require.NoError(t, err)
	job := wait(t, h)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 0, job.Total)
	assert.Equal(t, 0, job.Progress)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.Error)
}

func TestJob_ObservableBeforeTerminal(t *testing.T) {
	scorer := &fakeScorer{gate: make(chan struct{})}
	o := newTestOrchestrator(t, scorer, fakeCounter{count: 5}, nil)

	h, err := o.StartFounderRecalculation("f-1")
	require.NoError(t, err)

	job, err := o.GetJobStatus(h.JobID)
	require.NoError(t, err)
	assert.Contains(t, []models.JobStatus{models.JobPending, models.JobRunning}, job.Status)
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, models.JobFounderUpdate, job.Type)

	close(scorer.gate)
	done := wait(t, h)
	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, 1, done.Total)
	assert.Equal(t, 1, done.Progress)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(done.StartedAt))
}

func TestFounderRecalculation_InvalidatesFirst(t *testing.T) {
	c := &fakeCache{founders: map[string][]string{}}
	scorer := &fakeScorer{}
	o := newTestOrchestrator(t, scorer, fakeCounter{}, c)

	h, err := o.StartFounderRecalculation("f-9")
	require.NoError(t, err)
	wait(t, h)

	assert.Equal(t, []string{"f-9"}, c.invalidated)
	assert.Equal(t, []remote.Request{{FounderID: "f-9"}}, scorer.seen())
}

func TestFailedJob_RecordsBoundaryMessageVerbatim(t *testing.T) {
	scorer := &fakeScorer{err: &remote.BoundaryError{Message: "advisor table is empty"}}
	obs := &recordingObserver{}
	o := newTestOrchestrator(t, scorer, fakeCounter{count: 3}, nil, WithObserver(obs))

	h, err := o.StartFullRecalculation()
	require.NoError(t, err)
	job := wait(t, h)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, "advisor table is empty", job.Error)
	assert.Equal(t, 3, job.Total)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, []string{"full_recalculation:failed"}, obs.processed)
}

func TestFailedJob_CountError(t *testing.T) {
	o := newTestOrchestrator(t, &fakeScorer{}, fakeCounter{err: errors.New("relation \"users\" does not exist")}, nil)

	h, err := o.StartFullRecalculation()
	require.NoError(t, err)
	job := wait(t, h)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, `relation "users" does not exist`, job.Error)
}

func TestCallTimeout_FailsJob(t *testing.T) {
	scorer := &fakeScorer{gate: make(chan struct{})}
	o := New(scorer, fakeCounter{count: 1}, &fakeCache{}, Config{CallTimeout: 20 * time.Millisecond}, logger.NewTestLogger(t))
	defer o.Close(context.Background())

	h, err := o.StartFounderRecalculation("f-1")
	require.NoError(t, err)
	job := wait(t, h)

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), job.Error)
	assert.Equal(t, 0, job.Progress)
}

// slowScorer answers every request after delay unless ctx expires first.
type slowScorer struct {
	delay time.Duration
	total int
}

func (s slowScorer) Invoke(ctx context.Context, req remote.Request) (*remote.Response, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if req.BatchMode {
		return &remote.Response{Success: true, TotalFounders: &s.total}, nil
	}
	return &remote.Response{Success: true}, nil
}

func TestBatchTimeout_AppliesOnlyToFullRuns(t *testing.T) {
	scorer := slowScorer{delay: 60 * time.Millisecond, total: 3}
	o := New(scorer, fakeCounter{count: 3}, &fakeCache{}, Config{
		CallTimeout:  20 * time.Millisecond,
		BatchTimeout: 5 * time.Second,
	}, logger.NewTestLogger(t))
	defer o.Close(context.Background())

	full, err := o.StartFullRecalculation()
	require.NoError(t, err)
	job := wait(t, full)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 3, job.Progress)

	founder, err := o.StartFounderRecalculation("f-1")
	require.NoError(t, err)
	job = wait(t, founder)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), job.Error)
}

// ==========================
// Progress
// ==========================

func TestProgress_NeverDecreasesAndStaysWithinTotal(t *testing.T) {
	o := newTestOrchestrator(t, &fakeScorer{}, fakeCounter{}, nil)

	id := "manual"
	o.mu.Lock()
	o.jobs[id] = &entry{job: models.Job{ID: id, Status: models.JobRunning, Total: 4}, done: make(chan struct{})}
	o.mu.Unlock()

	var seen []int
	for _, step := range []int{1, 3, 2, 9, 0} {
		o.advance(id, step)
		job, err := o.GetJobStatus(id)
		require.NoError(t, err)
		seen = append(seen, job.Progress)
	}
	assert.Equal(t, []int{1, 3, 3, 4, 4}, seen)
}

func TestAdvisorRecalculation_UsesReverseIndex(t *testing.T) {
	c := &fakeCache{founders: map[string][]string{"a-1": {"f-1", "f-2"}}}
	scorer := &fakeScorer{}
	obs := &recordingObserver{}
	o := newTestOrchestrator(t, scorer, fakeCounter{count: 50}, c, WithObserver(obs))

	h, err := o.StartAdvisorRecalculation("a-1")
	require.NoError(t, err)
	job := wait(t, h)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, models.JobAdvisorUpdate, job.Type)
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, 2, job.Progress)
	assert.Equal(t, []remote.Request{
		{FounderID: "f-1", AdvisorID: "a-1"},
		{FounderID: "f-2", AdvisorID: "a-1"},
	}, scorer.seen())
	assert.Zero(t, c.invalidateAll)
	assert.Equal(t, 2, obs.units)
}

func TestAdvisorRecalculation_FallsBackToFull(t *testing.T) {
	total := 7
	c := &fakeCache{founders: map[string][]string{}}
	scorer := &fakeScorer{total: &total, progress: []int{3, 5}}
	o := newTestOrchestrator(t, scorer, fakeCounter{count: 7}, c)

	h, err := o.StartAdvisorRecalculation("a-new")
	require.NoError(t, err)
	job := wait(t, h)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 1, c.invalidateAll)
	assert.Equal(t, []remote.Request{{BatchMode: true}}, scorer.seen())
	assert.Equal(t, 7, job.Total)
	assert.Equal(t, 7, job.Progress)
}

func TestAdvisorRecalculation_IndexErrorFallsBackToFull(t *testing.T) {
	c := &fakeCache{indexErr: apperrors.NewCacheUnavailableError(errors.New("dial tcp: refused"))}
	scorer := &fakeScorer{}
	o := newTestOrchestrator(t, scorer, fakeCounter{count: 2}, c)

	h, err := o.StartAdvisorRecalculation("a-1")
	require.NoError(t, err)
	job := wait(t, h)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, []remote.Request{{BatchMode: true}}, scorer.seen())
}

// ==========================
// Registry
// ==========================

func TestStart_RejectsEmptyIDs(t *testing.T) {
	o := newTestOrchestrator(t, &fakeScorer{}, fakeCounter{}, nil)

	_, err := o.StartFounderRecalculation(" ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	_, err = o.StartAdvisorRecalculation("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	assert.Empty(t, o.ListJobs())
}

func TestGetJobStatus_Unknown(t *testing.T) {
	o := newTestOrchestrator(t, &fakeScorer{}, fakeCounter{}, nil)

	_, err := o.GetJobStatus("missing")
	assert.ErrorIs(t, err, apperrors.ErrJobNotFound)
}

func TestSweep_RemovesOnlyOldTerminalJobs(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, &fakeScorer{}, fakeCounter{}, nil, WithClock(func() time.Time { return now }))

	old := now.Add(-2 * time.Hour)
	recent := now.Add(-10 * time.Minute)
	o.mu.Lock()
	o.jobs["old-done"] = &entry{job: models.Job{ID: "old-done", Status: models.JobCompleted, StartedAt: old, CompletedAt: &old}}
	o.jobs["old-failed"] = &entry{job: models.Job{ID: "old-failed", Status: models.JobFailed, StartedAt: old, CompletedAt: &old}}
	o.jobs["recent-done"] = &entry{job: models.Job{ID: "recent-done", Status: models.JobCompleted, StartedAt: recent, CompletedAt: &recent}}
	o.jobs["old-running"] = &entry{job: models.Job{ID: "old-running", Status: models.JobRunning, StartedAt: old}}
	o.mu.Unlock()

	assert.Equal(t, 2, o.Sweep())

	var ids []string
	for _, j := range o.ListJobs() {
		ids = append(ids, j.ID)
	}
	assert.ElementsMatch(t, []string{"recent-done", "old-running"}, ids)
}

func TestClose_FailsRunningJobsAndRejectsNewOnes(t *testing.T) {
	scorer := &fakeScorer{gate: make(chan struct{})}
	o := New(scorer, fakeCounter{count: 1}, &fakeCache{}, Config{CallTimeout: time.Minute}, logger.NewTestLogger(t))

	h, err := o.StartFounderRecalculation("f-1")
	require.NoError(t, err)

	require.NoError(t, o.Close(context.Background()))
	job := wait(t, h)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, context.Canceled.Error(), job.Error)

	_, err = o.StartFullRecalculation()
	assert.Equal(t, apperrors.ErrCodeJobStartFailed, apperrors.AsStandardError(err).Code)
}
