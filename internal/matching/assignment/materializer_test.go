package assignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor-matching/internal/common/aws"
	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/models"
)

// ==========================
// Test Helpers
// ==========================

// memStore enforces the active-pair uniqueness the Postgres index provides.
type memStore struct {
	mu          sync.Mutex
	assignments []models.Assignment
	criteria    map[string]models.MatchScore
	insertErr   error
	upsertErr   map[string]error
}

func newMemStore() *memStore {
	return &memStore{criteria: map[string]models.MatchScore{}, upsertErr: map[string]error{}}
}

func (s *memStore) FindActive(_ context.Context, founderID, advisorID string) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.FounderID == founderID && a.AdvisorID == advisorID && a.DeletedAt == nil {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memStore) Insert(_ context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, existing := range s.assignments {
		if existing.FounderID == a.FounderID && existing.AdvisorID == a.AdvisorID && existing.DeletedAt == nil {
			return fmt.Errorf("%w: %s/%s", apperrors.ErrAssignmentExists, a.FounderID, a.AdvisorID)
		}
	}
	s.assignments = append(s.assignments, *a)
	return nil
}

func (s *memStore) UpsertCriteriaScores(_ context.Context, assignmentID string, score models.MatchScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertErr[score.AdvisorID]; err != nil {
		return err
	}
	s.criteria[assignmentID] = score
	return nil
}

func (s *memStore) ListActiveForFounder(_ context.Context, founderID string) ([]models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Assignment
	for _, a := range s.assignments {
		if a.FounderID == founderID && a.DeletedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) active(founderID, advisorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.assignments {
		if a.FounderID == founderID && a.AdvisorID == advisorID && a.DeletedAt == nil {
			n++
		}
	}
	return n
}

// racingStore holds every FindActive caller until all of them have looked,
// so each goroutine observes "absent" before anyone inserts.
type racingStore struct {
	*memStore
	barrier sync.WaitGroup
	once    sync.Map
}

func (r *racingStore) FindActive(ctx context.Context, founderID, advisorID string) (*models.Assignment, error) {
	a, err := r.memStore.FindActive(ctx, founderID, advisorID)
	if _, seen := r.once.LoadOrStore(fmt.Sprintf("%p", ctx), true); !seen {
		r.barrier.Done()
		r.barrier.Wait()
	}
	return a, err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []aws.AssignmentEvent
	err    error
}

func (p *recordingPublisher) PublishAssignmentCreated(_ context.Context, e aws.AssignmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func candidate(founderID, advisorID string, overall int) models.MatchScore {
	return models.MatchScore{
		FounderID:        founderID,
		AdvisorID:        advisorID,
		Overall:          overall,
		AlgorithmVersion: models.AlgorithmVersion,
		CalculatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ==========================
// Materialize Tests
// ==========================

func TestMaterialize_CreatesAboveThresholdOnly(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	m := NewMaterializer(store, models.QualityThreshold, logger.NewTestLogger(t), WithPublisher(pub))

	res, err := m.Materialize(context.Background(), "f-1", []models.MatchScore{
		candidate("f-1", "a-1", 91),
		candidate("f-1", "a-2", 60),
		candidate("f-1", "a-3", 59),
	})
	require.NoError(t, err)

	require.Len(t, res.Created, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)

	for _, a := range res.Created {
		assert.Equal(t, models.AssignmentPending, a.Status)
		assert.Equal(t, models.AssignedByAlgorithm, a.AssignedBy)
		assert.Contains(t, store.criteria, a.ID)
	}
	assert.Equal(t, 0, store.active("f-1", "a-3"))
	assert.Len(t, pub.events, 2)
	assert.Equal(t, 91, pub.events[0].MatchScore)
}

func TestMaterialize_SamePairTwiceYieldsOneAssignment(t *testing.T) {
	store := newMemStore()
	m := NewMaterializer(store, models.QualityThreshold, logger.NewTestLogger(t))
	ctx := context.Background()

	first, err := m.Materialize(ctx, "f-1", []models.MatchScore{candidate("f-1", "a-1", 80)})
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	second, err := m.Materialize(ctx, "f-1", []models.MatchScore{candidate("f-1", "a-1", 85)})
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, 1, second.Reused)

	assert.Equal(t, 1, store.active("f-1", "a-1"))
	assert.Equal(t, 85, store.criteria[first.Created[0].ID].Overall, "criteria row is upserted")
	assert.Equal(t, 80, first.Created[0].MatchScore, "assignment keeps its creation snapshot")
}

func TestMaterialize_ConcurrentCallsForNewPair(t *testing.T) {
	const callers = 2
	store := &racingStore{memStore: newMemStore()}
	store.barrier.Add(callers)
	m := NewMaterializer(store, models.QualityThreshold, logger.NewTestLogger(t))

	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			res, err := m.Materialize(ctx, "f-1", []models.MatchScore{candidate("f-1", "a-1", 75)})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.active("f-1", "a-1"))

	created, reused := 0, 0
	for _, r := range results {
		created += len(r.Created)
		reused += r.Reused
		assert.Zero(t, r.Failed)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, reused)
}

func TestMaterialize_PerItemFailureContinues(t *testing.T) {
	store := newMemStore()
	store.upsertErr["a-1"] = errors.New("disk full")
	m := NewMaterializer(store, models.QualityThreshold, logger.NewTestLogger(t))

	res, err := m.Materialize(context.Background(), "f-1", []models.MatchScore{
		candidate("f-1", "a-1", 90),
		candidate("f-1", "a-2", 70),
		candidate("f-2", "a-3", 99),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped, "candidate for another founder is ignored")
	require.Len(t, res.Created, 1)
	assert.Equal(t, "a-2", res.Created[0].AdvisorID)
}

func TestMaterialize_InsertFailure(t *testing.T) {
	store := newMemStore()
	store.insertErr = apperrors.NewAssignmentInsertFailedError(errors.New("connection reset"))
	m := NewMaterializer(store, models.QualityThreshold, logger.NewTestLogger(t))

	res, err := m.Materialize(context.Background(), "f-1", []models.MatchScore{candidate("f-1", "a-1", 90)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.Created)
}

func TestMaterialize_PublisherFailureDoesNotFailItem(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{err: errors.New("sns throttled")}
	m := NewMaterializer(store, models.QualityThreshold, logger.NewTestLogger(t), WithPublisher(pub))

	res, err := m.Materialize(context.Background(), "f-1", []models.MatchScore{candidate("f-1", "a-1", 90)})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	assert.Zero(t, res.Failed)
}

func TestMaterialize_StopsOnCancelledContext(t *testing.T) {
	m := NewMaterializer(newMemStore(), models.QualityThreshold, logger.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Materialize(ctx, "f-1", []models.MatchScore{candidate("f-1", "a-1", 90)})
	assert.ErrorIs(t, err, context.Canceled)
}
