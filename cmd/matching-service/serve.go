package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"advisor-matching/internal/api"
	"advisor-matching/internal/common/camunda"
	"advisor-matching/internal/matching/remote"
	pairscore "advisor-matching/internal/workers/matching/calculate-match-score"
	recalc "advisor-matching/internal/workers/matching/recalculate-matches"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the job sweeper and the Zeebe workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	s, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.close(closeCtx)
	}()

	workers, client, err := startWorkers(ctx, s)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() {
			for _, w := range workers {
				w.Stop()
			}
			_ = client.Close()
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		ServiceName:     s.cfg.App.Name,
		MatchingHandler: api.NewMatchingHandler(s.orchestrator, s.matcher, s.assignments, s.profiles),
		HealthHandler: api.NewHealthHandler(map[string]api.Checker{
			"postgres": s.pg.Ping,
			"redis":    s.redis.Ping,
		}),
		Scoring: remote.NewServer(s.local, s.cfg.Scoring.APIKey, s.log),
		Logger:  s.log,
	})
	server := api.NewServer(s.cfg.Server.Address, router, s.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, s.cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return s.orchestrator.Run(gctx)
	})

	s.log.Info("Matching service started", map[string]interface{}{
		"address":       s.cfg.Server.Address,
		"remoteScoring": s.cfg.Scoring.IsRemote(),
	})
	err = g.Wait()
	s.log.Info("Matching service stopped", nil)
	return err
}

// startWorkers subscribes every enabled Zeebe worker over one shared client.
// Nothing is started when no broker is configured.
func startWorkers(ctx context.Context, s *services) ([]*camunda.CamundaWorker, *camunda.Client, error) {
	recalcCfg := recalc.LoadConfig(s.cfg)
	scoreCfg := pairscore.LoadConfig(s.cfg)
	if s.cfg.Camunda.BrokerAddress == "" || (!recalcCfg.Enabled && !scoreCfg.Enabled) {
		s.log.Info("Zeebe workers disabled", map[string]interface{}{"brokerAddress": s.cfg.Camunda.BrokerAddress})
		return nil, nil, nil
	}

	client, err := camunda.NewClient(ctx, s.cfg.Camunda.BrokerAddress)
	if err != nil {
		return nil, nil, err
	}

	var workers []*camunda.CamundaWorker
	if recalcCfg.Enabled {
		handler, err := recalc.NewHandler(recalcCfg, s.profiles, s.orchestrator, s.log)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		workers = append(workers, camunda.NewWorker(client.GetClient(), recalc.TaskType, camunda.WorkerOptions{
			MaxJobsActive: recalcCfg.MaxJobsActive,
			Timeout:       recalcCfg.Timeout + 10*time.Second,
		}, handler, s.log))
	}
	if scoreCfg.Enabled {
		handler := pairscore.NewHandler(scoreCfg, s.profiles, s.scorer, s.scores, s.log)
		workers = append(workers, camunda.NewWorker(client.GetClient(), pairscore.TaskType, camunda.WorkerOptions{
			MaxJobsActive: scoreCfg.MaxJobsActive,
			Timeout:       scoreCfg.Timeout + 5*time.Second,
		}, handler, s.log))
	}
	return workers, client, nil
}
