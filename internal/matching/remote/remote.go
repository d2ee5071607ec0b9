// Package remote is the scoring boundary: the request/response contract the
// orchestrator uses for heavy computation, an HTTP client for a remote
// deployment, an in-process implementation and the HTTP handler serving it.
package remote

import (
	"context"
	"fmt"
	"strings"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/matching/matcher"
	"advisor-matching/internal/models"
)

const (
	ModeFounder = "founder"
	ModePair    = "pair"
	ModeBatch   = "batch"
)

// Request takes one of three shapes: {founderId}, {founderId, advisorId}
// or {batchMode: true}.
type Request struct {
	FounderID string `json:"founderId,omitempty"`
	AdvisorID string `json:"advisorId,omitempty"`
	BatchMode bool   `json:"batchMode,omitempty"`
}

func (r Request) Mode() string {
	switch {
	case r.BatchMode:
		return ModeBatch
	case r.AdvisorID != "":
		return ModePair
	default:
		return ModeFounder
	}
}

func (r Request) Validate() error {
	founder := strings.TrimSpace(r.FounderID)
	advisor := strings.TrimSpace(r.AdvisorID)
	switch {
	case r.BatchMode && (founder != "" || advisor != ""):
		return fmt.Errorf("%w: batchMode cannot be combined with founderId or advisorId", apperrors.ErrInvalidRequest)
	case r.BatchMode:
		return nil
	case founder == "":
		return fmt.Errorf("%w: founderId is required", apperrors.ErrInvalidRequest)
	}
	return nil
}

type Response struct {
	Success       bool                `json:"success"`
	Matches       []models.MatchScore `json:"matches,omitempty"`
	Error         string              `json:"error,omitempty"`
	TotalFounders *int                `json:"totalFounders,omitempty"`
}

// Scorer invokes the boundary. A response with success=false is returned as
// a *BoundaryError carrying the boundary's message.
type Scorer interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

type BoundaryError struct {
	Message    string
	StatusCode int

	cause error
}

func (e *BoundaryError) Error() string {
	return e.Message
}

func (e *BoundaryError) Unwrap() error {
	return e.cause
}

type progressKey struct{}

// WithProgress attaches a progress callback that batch invocations report
// to when the boundary runs in-process.
func WithProgress(ctx context.Context, fn matcher.ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFrom returns the callback attached with WithProgress, or nil.
func ProgressFrom(ctx context.Context) matcher.ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(matcher.ProgressFunc)
	return fn
}
