package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"advisor-matching/internal/common/aws"
	"advisor-matching/internal/common/config"
	"advisor-matching/internal/common/database"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/observability"
	"advisor-matching/internal/matching/assignment"
	"advisor-matching/internal/matching/cache"
	"advisor-matching/internal/matching/matcher"
	"advisor-matching/internal/matching/orchestrator"
	"advisor-matching/internal/matching/profile"
	"advisor-matching/internal/matching/remote"
	"advisor-matching/internal/matching/scoring"
)

// services holds every long-lived component built from one config.
type services struct {
	cfg    *config.Config
	zapLog *zap.Logger
	log    logger.Logger
	obs    *observability.Observability

	pg    *database.PostgresClient
	redis *database.RedisClient

	profiles     *profile.Resolver
	assignments  *assignment.PostgresStore
	scorer       *scoring.Scorer
	scores       *cache.RedisCache
	matcher      *matcher.Matcher
	local        *remote.LocalScorer
	orchestrator *orchestrator.Orchestrator
}

func newServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	zapLog := logger.New(level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	s := &services{cfg: cfg, zapLog: zapLog, log: log}
	s.obs = observability.New(cfg.App.Name, log)

	if s.pg, err = database.NewPostgres(ctx, cfg.Database.Postgres); err != nil {
		s.close(ctx)
		return nil, err
	}
	log.Info("PostgreSQL connected", nil)

	if s.redis, err = database.NewRedis(ctx, cfg.Database.Redis); err != nil {
		s.close(ctx)
		return nil, err
	}
	log.Info("Redis connected", nil)

	s.assignments = assignment.NewPostgresStore(s.pg.DB)
	if err := s.assignments.EnsureSchema(ctx); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("ensure assignment schema: %w", err)
	}

	var materializerOpts []assignment.Option
	if sns := cfg.Integrations.AWS.SNS; sns.Enabled {
		client, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("create SNS client: %w", err)
		}
		materializerOpts = append(materializerOpts, assignment.WithPublisher(aws.NewAssignmentPublisher(client, sns.TopicARN)))
		log.Info("Assignment events enabled", map[string]interface{}{"topicArn": sns.TopicARN})
	}

	s.profiles = profile.NewResolver(profile.NewPostgresStore(s.pg.DB), log)
	s.scorer = scoring.NewScorer(cfg.Matching.AlgorithmVersion)
	s.scores = cache.NewRedisCache(s.redis.Client, cfg.Matching.AlgorithmVersion, cfg.Matching.CacheTTL, log)
	materializer := assignment.NewMaterializer(s.assignments, cfg.Matching.QualityThreshold, log, materializerOpts...)

	s.matcher = matcher.New(
		s.profiles,
		s.scorer,
		s.scores,
		materializer,
		log,
		matcher.WithMaxCandidates(cfg.Matching.MaxCandidates),
	)
	s.local = remote.NewLocalScorer(s.matcher, log)

	var scorer remote.Scorer = s.local
	if cfg.Scoring.IsRemote() {
		scorer = remote.NewClient(cfg.Scoring, s.obs.Tracer(), log)
		log.Info("Using remote scoring boundary", map[string]interface{}{"baseUrl": cfg.Scoring.BaseURL})
	}

	s.orchestrator = orchestrator.New(scorer, s.profiles, s.scores, orchestrator.Config{
		CallTimeout:     cfg.Scoring.Timeout,
		BatchTimeout:    cfg.Scoring.BatchTimeout,
		Retention:       cfg.Matching.JobRetention,
		CleanupInterval: cfg.Matching.CleanupInterval,
	}, log, orchestrator.WithObserver(s.obs))

	return s, nil
}

// close releases resources in reverse order of construction. Running jobs
// are cancelled first so they record a final status.
func (s *services) close(ctx context.Context) {
	if s.orchestrator != nil {
		if err := s.orchestrator.Close(ctx); err != nil {
			s.log.Warn("Recalculation jobs did not stop in time", map[string]interface{}{"error": err})
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pg != nil {
		_ = s.pg.Close()
	}
	s.obs.Shutdown()
	_ = s.zapLog.Sync()
}
