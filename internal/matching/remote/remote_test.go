package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"advisor-matching/internal/common/config"
	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/matching/matcher"
	"advisor-matching/internal/models"
)

// ==========================
// Test Helpers
// ==========================

type fakeEngine struct {
	matches  []models.MatchScore
	pair     *models.MatchScore
	founders int
	err      error
	forced   []bool
}

func (e *fakeEngine) CalculateFounderMatches(_ context.Context, founderID string, force bool) ([]models.MatchScore, error) {
	e.forced = append(e.forced, force)
	if e.err != nil {
		return nil, e.err
	}
	return e.matches, nil
}

func (e *fakeEngine) RecalculatePair(_ context.Context, _, _ string) (*models.MatchScore, error) {
	return e.pair, e.err
}

func (e *fakeEngine) RecalculateAll(_ context.Context, progress matcher.ProgressFunc) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	for i := 1; i <= e.founders; i++ {
		if progress != nil {
			progress(i)
		}
	}
	return e.founders, nil
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	return NewClient(
		config.ScoringConfig{BaseURL: url, APIKey: "k-1", Timeout: 5 * time.Second, MaxRetries: retries},
		otel.Tracer("test"),
		logger.NewTestLogger(t),
		WithBackOffPolicy(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
	)
}

func sampleScore() models.MatchScore {
	return models.MatchScore{
		FounderID:        "f-1",
		AdvisorID:        "a-1",
		Overall:          85,
		AlgorithmVersion: models.AlgorithmVersion,
		CalculatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ==========================
// Request
// ==========================

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		mode    string
		wantErr bool
	}{
		{name: "founder", req: Request{FounderID: "f-1"}, mode: ModeFounder},
		{name: "pair", req: Request{FounderID: "f-1", AdvisorID: "a-1"}, mode: ModePair},
		{name: "batch", req: Request{BatchMode: true}, mode: ModeBatch},
		{name: "empty", req: Request{}, mode: ModeFounder, wantErr: true},
		{name: "advisor only", req: Request{AdvisorID: "a-1"}, mode: ModePair, wantErr: true},
		{name: "batch with founder", req: Request{BatchMode: true, FounderID: "f-1"}, mode: ModeBatch, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.mode, tt.req.Mode())
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ==========================
// LocalScorer
// ==========================

func TestLocalScorer_FounderRequestForcesRecompute(t *testing.T) {
	engine := &fakeEngine{matches: []models.MatchScore{sampleScore()}}
	s := NewLocalScorer(engine, logger.NewTestLogger(t))

	resp, err := s.Invoke(context.Background(), Request{FounderID: "f-1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, resp.Matches, 1)
	assert.Equal(t, []bool{true}, engine.forced)
}

func TestLocalScorer_BatchReportsProgress(t *testing.T) {
	engine := &fakeEngine{founders: 3}
	s := NewLocalScorer(engine, logger.NewTestLogger(t))

	var last int
	ctx := WithProgress(context.Background(), func(done int) { last = done })
	resp, err := s.Invoke(ctx, Request{BatchMode: true})
	require.NoError(t, err)
	require.NotNil(t, resp.TotalFounders)
	assert.Equal(t, 3, *resp.TotalFounders)
	assert.Equal(t, 3, last)
}

func TestLocalScorer_PairWithUnknownUserIsEmpty(t *testing.T) {
	s := NewLocalScorer(&fakeEngine{}, logger.NewTestLogger(t))

	resp, err := s.Invoke(context.Background(), Request{FounderID: "f-1", AdvisorID: "ghost"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Matches)
}

func TestLocalScorer_EngineFailureIsBoundaryError(t *testing.T) {
	cause := apperrors.NewQueryExecutionFailedError("list users", errors.New("connection refused"))
	s := NewLocalScorer(&fakeEngine{err: cause}, logger.NewTestLogger(t))

	_, err := s.Invoke(context.Background(), Request{FounderID: "f-1"})
	var be *BoundaryError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, cause.Error(), be.Message)
	assert.ErrorIs(t, err, cause)
}

// ==========================
// Client
// ==========================

func TestClient_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ScorePath, r.URL.Path)
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "f-1", req.FounderID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Success: true, Matches: []models.MatchScore{sampleScore()}})
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL, 0).Invoke(context.Background(), Request{FounderID: "f-1"})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, 85, resp.Matches[0].Overall)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"totalFounders":4}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL, 3).Invoke(context.Background(), Request{BatchMode: true})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.NotNil(t, resp.TotalFounders)
	assert.Equal(t, 4, *resp.TotalFounders)
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":"rate limited"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 2).Invoke(context.Background(), Request{FounderID: "f-1"})
	var be *BoundaryError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "rate limited", be.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NonSuccessIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"success":false,"error":"advisor table is empty"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 3).Invoke(context.Background(), Request{FounderID: "f-1"})
	require.Error(t, err)
	assert.Equal(t, "advisor table is empty", err.Error())
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RejectsMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"matches":[{"founderId":"f-1","advisorId":"a-1","overall":140}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 3).Invoke(context.Background(), Request{FounderID: "f-1"})
	var be *BoundaryError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Message, "malformed scoring response")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, server.URL, 3).Invoke(ctx, Request{BatchMode: true})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeScoringTimeout, apperrors.AsStandardError(err).Code)
}

// ==========================
// Server
// ==========================

func TestServer_RoundTripThroughClient(t *testing.T) {
	engine := &fakeEngine{matches: []models.MatchScore{sampleScore()}}
	srv := httptest.NewServer(NewServer(NewLocalScorer(engine, logger.NewTestLogger(t)), "k-1", logger.NewTestLogger(t)))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL, 0).Invoke(context.Background(), Request{FounderID: "f-1"})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "a-1", resp.Matches[0].AdvisorID)
}

func TestServer_RequestErrors(t *testing.T) {
	handler := NewServer(NewLocalScorer(&fakeEngine{}, logger.NewTestLogger(t)), "k-1", logger.NewTestLogger(t))

	tests := []struct {
		name   string
		method string
		auth   string
		body   string
		status int
	}{
		{name: "wrong method", method: http.MethodGet, auth: "Bearer k-1", status: http.StatusMethodNotAllowed},
		{name: "missing key", method: http.MethodPost, body: `{"founderId":"f-1"}`, status: http.StatusUnauthorized},
		{name: "unknown field", method: http.MethodPost, auth: "Bearer k-1", body: `{"userId":"f-1"}`, status: http.StatusBadRequest},
		{name: "not json", method: http.MethodPost, auth: "Bearer k-1", body: `founder`, status: http.StatusBadRequest},
		{name: "no founder", method: http.MethodPost, auth: "Bearer k-1", body: `{}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, ScorePath, strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestServer_RetryableFailureIs503(t *testing.T) {
	cause := apperrors.NewQueryExecutionFailedError("list users", errors.New("connection refused"))
	handler := NewServer(NewLocalScorer(&fakeEngine{err: cause}, logger.NewTestLogger(t)), "", logger.NewTestLogger(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, ScorePath, strings.NewReader(`{"founderId":"f-1"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
