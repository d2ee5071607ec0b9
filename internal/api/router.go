// Package api exposes the matching service over HTTP: job control, founder
// match reads, profile migration and the scoring boundary endpoint.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/matching/remote"
)

type RouterConfig struct {
	ServiceName     string
	MatchingHandler *MatchingHandler
	HealthHandler   *HealthHandler
	// Scoring serves the boundary endpoint when this process acts as the
	// remote scorer for other deployments.
	Scoring http.Handler
	Logger  logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	if cfg.Logger != nil {
		r.Use(requestLogger(cfg.Logger.WithFields(map[string]interface{}{"component": "http"})))
	}

	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.Health)
		r.GET("/ready", cfg.HealthHandler.Ready)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Scoring != nil {
		r.Any(remote.ScorePath, gin.WrapH(cfg.Scoring))
	}

	v1 := r.Group("/api/v1")
	if h := cfg.MatchingHandler; h != nil {
		v1.POST("/matching/recalculate", h.Recalculate)
		v1.GET("/matching/jobs", h.ListJobs)
		v1.GET("/matching/jobs/:id", h.GetJob)
		v1.GET("/founders/:id/matches", h.FounderMatches)
		v1.GET("/founders/:id/assignments", h.FounderAssignments)
		v1.POST("/profiles/:id/migrate", h.MigrateProfile)
	}

	return r
}
