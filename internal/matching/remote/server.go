package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/validation"
)

const maxRequestBytes = 1 << 20

var requestSchema = validation.MustCompile(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"founderId": map[string]interface{}{"type": "string"},
		"advisorId": map[string]interface{}{"type": "string"},
		"batchMode": map[string]interface{}{"type": "boolean"},
	},
	"additionalProperties": false,
})

// Server exposes a Scorer at POST /v1/score.
type Server struct {
	scorer Scorer
	apiKey string
	logger logger.Logger
}

func NewServer(scorer Scorer, apiKey string, log logger.Logger) *Server {
	return &Server{
		scorer: scorer,
		apiKey: apiKey,
		logger: log.WithFields(map[string]interface{}{"component": "scoring-server"}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeResponse(w, http.StatusMethodNotAllowed, &Response{Error: "method not allowed"})
		return
	}
	if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
		writeResponse(w, http.StatusUnauthorized, &Response{Error: "unauthorized"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, &Response{Error: "unreadable request body"})
		return
	}
	result, err := requestSchema.ValidateBytes(raw)
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		writeResponse(w, http.StatusBadRequest, &Response{Error: err.Error()})
		return
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeResponse(w, http.StatusBadRequest, &Response{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeResponse(w, http.StatusBadRequest, &Response{Error: err.Error()})
		return
	}

	resp, err := s.scorer.Invoke(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("Scoring request failed", map[string]interface{}{
			"mode":       req.Mode(),
			"founderId":  req.FounderID,
			"statusCode": status,
			"error":      err,
		})
		writeResponse(w, status, &Response{Error: err.Error()})
		return
	}
	writeResponse(w, http.StatusOK, resp)
}

// statusFor picks 503 for retryable storage failures so remote clients retry,
// 400 for invalid input and 200 with success=false for everything else.
func statusFor(err error) int {
	if errors.Is(err, apperrors.ErrInvalidRequest) || errors.Is(err, apperrors.ErrInvalidProfile) {
		return http.StatusBadRequest
	}
	var se *apperrors.StandardError
	if errors.As(err, &se) && se.Retryable {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusOK
}

func writeResponse(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
