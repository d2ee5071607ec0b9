// Package errors provides the standardized error model shared by the matching
// core, its HTTP surface and the Zeebe workers.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels compared with errors.Is across packages.
var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrAssignmentExists = errors.New("assignment already exists")
	ErrJobNotFound      = errors.New("job not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeProfileNotFound         ErrorCode = "PROFILE_NOT_FOUND"
	ErrCodeProfileResolutionFailed ErrorCode = "PROFILE_RESOLUTION_FAILED"
	ErrCodeProfileMigrationFailed  ErrorCode = "PROFILE_MIGRATION_FAILED"

	ErrCodeScoringFailed         ErrorCode = "SCORING_FAILED"
	ErrCodeScoringBoundaryFailed ErrorCode = "SCORING_BOUNDARY_FAILED"
	ErrCodeScoringTimeout        ErrorCode = "SCORING_TIMEOUT"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeAssignmentInsertFailed   ErrorCode = "ASSIGNMENT_INSERT_FAILED"
	ErrCodeDuplicateAssignment      ErrorCode = "DUPLICATE_ASSIGNMENT"

	ErrCodeJobStartFailed ErrorCode = "JOB_START_FAILED"
	ErrCodeInvalidTrigger ErrorCode = "INVALID_TRIGGER"

	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func NewProfileNotFoundError(userID string) *StandardError {
	se := newError(ErrCodeProfileNotFound, "Profile not found", ErrProfileNotFound, false)
	se.Details = fmt.Sprintf("userId: %s", userID)
	return se
}

func NewProfileResolutionFailedError(err error) *StandardError {
	return newError(ErrCodeProfileResolutionFailed, "Profile could not be resolved", err, true)
}

func NewProfileMigrationFailedError(err error) *StandardError {
	return newError(ErrCodeProfileMigrationFailed, "Profile migration to canonical store failed", err, true)
}

func NewScoringFailedError(err error) *StandardError {
	return newError(ErrCodeScoringFailed, "Compatibility scoring failed", err, false)
}

func NewScoringBoundaryFailedError(err error) *StandardError {
	return newError(ErrCodeScoringBoundaryFailed, "Remote scoring boundary reported failure", err, true)
}

func NewScoringTimeoutError(err error) *StandardError {
	return newError(ErrCodeScoringTimeout, "Remote scoring call timed out", err, true)
}

func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Score cache unavailable", err, true)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

func NewQueryExecutionFailedError(query string, err error) *StandardError {
	se := newError(ErrCodeQueryExecutionFailed, "Database query execution error", err, true)
	se.Details = fmt.Sprintf("query: %s, error: %v", query, err)
	return se
}

func NewAssignmentInsertFailedError(err error) *StandardError {
	return newError(ErrCodeAssignmentInsertFailed, "Assignment insert failed", err, true)
}

func NewDuplicateAssignmentError(founderID, advisorID string) *StandardError {
	se := newError(ErrCodeDuplicateAssignment, "Assignment already exists", ErrAssignmentExists, false)
	se.Details = fmt.Sprintf("founderId: %s, advisorId: %s", founderID, advisorID)
	return se
}

func NewJobStartFailedError(err error) *StandardError {
	return newError(ErrCodeJobStartFailed, "Recalculation job could not be started", err, true)
}

func NewInvalidTriggerError(details string) *StandardError {
	se := newError(ErrCodeInvalidTrigger, "Unsupported recalculation trigger", ErrInvalidRequest, false)
	se.Details = details
	return se
}

func NewValidationError(details string) *StandardError {
	se := newError(ErrCodeValidationFailed, "Input validation failed", ErrInvalidRequest, false)
	se.Details = details
	return se
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeProfileNotFound:          "PROFILE_NOT_FOUND",
	ErrCodeProfileResolutionFailed:  "PROFILE_RESOLUTION_FAILED",
	ErrCodeProfileMigrationFailed:   "PROFILE_MIGRATION_FAILED",
	ErrCodeScoringFailed:            "SCORING_FAILED",
	ErrCodeScoringBoundaryFailed:    "SCORING_BOUNDARY_FAILED",
	ErrCodeScoringTimeout:           "SCORING_TIMEOUT",
	ErrCodeCacheUnavailable:         "CACHE_UNAVAILABLE",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryExecutionFailed:     "QUERY_EXECUTION_FAILED",
	ErrCodeAssignmentInsertFailed:   "ASSIGNMENT_INSERT_FAILED",
	ErrCodeDuplicateAssignment:      "DUPLICATE_ASSIGNMENT",
	ErrCodeJobStartFailed:           "JOB_START_FAILED",
	ErrCodeInvalidTrigger:           "INVALID_TRIGGER",
	ErrCodeValidationFailed:         "VALIDATION_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProfileResolutionFailed,
		ErrCodeProfileMigrationFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeAssignmentInsertFailed,
		ErrCodeCacheUnavailable,
		ErrCodeJobStartFailed:
		return 3

	case ErrCodeScoringBoundaryFailed,
		ErrCodeScoringTimeout:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError maps a StandardError onto the code/retry contract of the workflow engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "PROFILE"):
		return "PROFILE"
	case strings.HasPrefix(codeStr, "SCORING"):
		return "SCORING"
	case strings.HasPrefix(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "ASSIGNMENT"):
		return "DATABASE"
	case strings.Contains(codeStr, "JOB") || strings.Contains(codeStr, "TRIGGER"):
		return "ORCHESTRATION"
	default:
		return "OTHER"
	}
}

// AsStandardError unwraps err into a *StandardError, wrapping unknown errors as INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	var se *StandardError
	if errors.As(err, &se) {
		return se
	}
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}
