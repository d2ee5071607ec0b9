package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name            string
		err             *StandardError
		expectedCode    string
		expectedRetries int
	}{
		{
			name:            "retryable database error keeps its budget",
			err:             NewAssignmentInsertFailedError(errors.New("connection reset")),
			expectedCode:    "ASSIGNMENT_INSERT_FAILED",
			expectedRetries: 3,
		},
		{
			name:            "boundary failure gets partial retry",
			err:             NewScoringBoundaryFailedError(errors.New("advisor table empty")),
			expectedCode:    "SCORING_BOUNDARY_FAILED",
			expectedRetries: 2,
		},
		{
			name:            "business error is not retried",
			err:             NewInvalidTriggerError("trigger: unknown"),
			expectedCode:    "INVALID_TRIGGER",
			expectedRetries: 0,
		},
		{
			name:            "non-retryable flag wins over code budget",
			err:             &StandardError{Code: ErrCodeQueryExecutionFailed, Message: "bad query", Retryable: false},
			expectedCode:    "QUERY_EXECUTION_FAILED",
			expectedRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmnErr := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.expectedCode, bpmnErr.Code)
			assert.Equal(t, tt.expectedRetries, bpmnErr.Retries)

			vars := bpmnErr.ToErrorVariables()
			assert.Equal(t, tt.expectedCode, vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestAsStandardError(t *testing.T) {
	t.Run("unwraps wrapped standard error", func(t *testing.T) {
		base := NewProfileNotFoundError("user-1")
		wrapped := fmt.Errorf("resolve founder: %w", base)

		got := AsStandardError(wrapped)
		assert.Same(t, base, got)
		assert.True(t, errors.Is(wrapped, ErrProfileNotFound))
	})

	t.Run("plain error becomes internal error", func(t *testing.T) {
		got := AsStandardError(errors.New("boom"))
		require.NotNil(t, got)
		assert.Equal(t, ErrCodeInternal, got.Code)
		assert.Equal(t, "boom", got.Details)
		assert.False(t, got.Retryable)
	})
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "PROFILE", GetErrorCategory(ErrCodeProfileResolutionFailed))
	assert.Equal(t, "SCORING", GetErrorCategory(ErrCodeScoringTimeout))
	assert.Equal(t, "CACHE", GetErrorCategory(ErrCodeCacheUnavailable))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDuplicateAssignment))
	assert.Equal(t, "ORCHESTRATION", GetErrorCategory(ErrCodeJobStartFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestRemainingRetries(t *testing.T) {
	assert.Equal(t, int32(2), RemainingRetries(3, 3))
	assert.Equal(t, int32(3), RemainingRetries(10, 3))
	assert.Equal(t, int32(0), RemainingRetries(1, 3))
	assert.Equal(t, int32(0), RemainingRetries(0, 2))
	assert.True(t, IsRetryableErrorCode(ErrCodeScoringTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeDuplicateAssignment))
}
