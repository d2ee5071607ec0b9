package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"advisor-matching/internal/common/config"
	apperrors "advisor-matching/internal/common/errors"
	commonhttp "advisor-matching/internal/common/http"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/common/validation"
)

const ScorePath = "/v1/score"

var responseSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []string{"success"},
	"properties": map[string]interface{}{
		"success":       map[string]interface{}{"type": "boolean"},
		"error":         map[string]interface{}{"type": "string"},
		"totalFounders": map[string]interface{}{"type": "integer", "minimum": 0},
		"matches": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []string{"founderId", "advisorId", "overall"},
				"properties": map[string]interface{}{
					"founderId": map[string]interface{}{"type": "string"},
					"advisorId": map[string]interface{}{"type": "string"},
					"overall":   map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
				},
			},
		},
	},
})

// Client calls a remote scoring deployment over HTTP. Transport errors,
// 429 and 5xx responses are retried with exponential backoff.
type Client struct {
	http     *commonhttp.Client
	endpoint string
	apiKey   string
	maxTries uint
	tracer   trace.Tracer
	logger   logger.Logger
	policy   func() backoff.BackOff
}

type ClientOption func(*Client)

// WithBackOffPolicy replaces the exponential retry schedule.
func WithBackOffPolicy(policy func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.policy = policy }
}

func NewClient(cfg config.ScoringConfig, tracer trace.Tracer, log logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		http:     commonhttp.NewClient(max(cfg.Timeout, cfg.BatchTimeout)),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + ScorePath,
		apiKey:   cfg.APIKey,
		maxTries: uint(max(cfg.MaxRetries, 0)) + 1,
		tracer:   tracer,
		logger:   log.WithFields(map[string]interface{}{"component": "scoring-client"}),
		policy:   func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, &BoundaryError{Message: err.Error(), cause: err}
	}

	ctx, span := c.tracer.Start(ctx, "scoring.invoke", trace.WithAttributes(
		attribute.String("scoring.mode", req.Mode()),
		attribute.String("scoring.founder_id", req.FounderID),
	))
	defer span.End()

	start := time.Now()
	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		attempt++
		return c.attempt(ctx, req, attempt)
	}, backoff.WithBackOff(c.policy()), backoff.WithMaxTries(c.maxTries))
	metrics.ScoringBoundaryCalls.WithLabelValues("remote", strconv.FormatBool(err == nil)).Observe(time.Since(start).Seconds())

	if err != nil {
		err = classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Scoring boundary call failed", map[string]interface{}{
			"mode":     req.Mode(),
			"attempts": attempt,
			"error":    err,
		})
		return nil, err
	}

	span.SetAttributes(attribute.Int("scoring.matches", len(resp.Matches)))
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req Request, n int) (*Response, error) {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	raw, err := c.http.PostJSON(ctx, c.endpoint, headers, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		c.logger.Warn("Scoring boundary unreachable", map[string]interface{}{"attempt": n, "error": err})
		return nil, err
	}

	body, decodeErr := decodeResponse(raw.Body)

	if raw.StatusCode == http.StatusTooManyRequests || raw.StatusCode >= 500 {
		c.logger.Warn("Scoring boundary returned retryable status", map[string]interface{}{
			"attempt":    n,
			"statusCode": raw.StatusCode,
		})
		return nil, failure(raw.StatusCode, body)
	}
	if decodeErr != nil {
		return nil, backoff.Permanent(&BoundaryError{
			Message:    fmt.Sprintf("malformed scoring response (status %d): %v", raw.StatusCode, decodeErr),
			StatusCode: raw.StatusCode,
			cause:      decodeErr,
		})
	}
	if raw.StatusCode >= 300 || !body.Success {
		return nil, backoff.Permanent(failure(raw.StatusCode, body))
	}
	return body, nil
}

func decodeResponse(raw []byte) (*Response, error) {
	result, err := responseSchema.ValidateBytes(raw)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func failure(status int, body *Response) *BoundaryError {
	if body != nil && body.Error != "" {
		return &BoundaryError{Message: body.Error, StatusCode: status}
	}
	return &BoundaryError{Message: fmt.Sprintf("scoring boundary returned status %d", status), StatusCode: status}
}

// classify keeps boundary messages verbatim and maps the rest onto the
// scoring error codes.
func classify(ctx context.Context, err error) error {
	var be *BoundaryError
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewScoringTimeoutError(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.NewScoringBoundaryFailedError(err)
}
