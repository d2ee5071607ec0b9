package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "advisor-matching/internal/common/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		if se := asStandard(err); se != nil && se.Details != "" {
			msg = se.Message + ": " + se.Details
		}
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondFailure picks the status and code for an error returned by the
// matching components.
func respondFailure(c *gin.Context, err error) {
	status, code := classify(err)
	respondError(c, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrJobNotFound):
		return http.StatusNotFound, "job_not_found"
	case errors.Is(err, apperrors.ErrProfileNotFound):
		return http.StatusNotFound, "profile_not_found"
	case errors.Is(err, apperrors.ErrInvalidRequest), errors.Is(err, apperrors.ErrInvalidProfile):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	if se := asStandard(err); se != nil {
		if se.Retryable {
			return http.StatusServiceUnavailable, string(se.Code)
		}
		return http.StatusInternalServerError, string(se.Code)
	}
	return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
}

func asStandard(err error) *apperrors.StandardError {
	var se *apperrors.StandardError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
