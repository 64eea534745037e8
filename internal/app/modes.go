package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyrec/internal/cluster"
	"github.com/alanyoungcy/polyrec/internal/pipeline"
	"github.com/alanyoungcy/polyrec/internal/pnl"
	"github.com/alanyoungcy/polyrec/internal/profile"
	"github.com/alanyoungcy/polyrec/internal/recommend"
	"github.com/alanyoungcy/polyrec/internal/server"
	"github.com/alanyoungcy/polyrec/internal/server/handler"
	"github.com/alanyoungcy/polyrec/internal/service"
)

// components holds the services and jobs built on top of Dependencies.
type components struct {
	deps          *Dependencies
	markets       *service.MarketService
	recs          *service.RecommendationService
	walletProfile *service.WalletProfileService
	partner       *recommend.PartnerRanker
	orchestrator  *pipeline.Orchestrator
}

func (a *App) build(deps *Dependencies) *components {
	cfg := a.cfg
	logger := a.base
	dim := cfg.Embedding.Dimensions

	markets := service.NewMarketService(deps.Markets, deps.MarketCache, logger)
	pnlSvc := pnl.NewService(deps.Markets, deps.Transactions, deps.Summaries, deps.Categories, logger)
	profileSvc := profile.NewService(deps.Summaries, deps.Markets, deps.Profiles, profile.NewBuilder(dim), logger)
	bg := recommend.NewBackground(cfg.Ranker.BackgroundWorkers, cfg.Ranker.BackgroundTimeout.Duration, logger)

	workers := cfg.Pipeline.Workers
	pageSize := cfg.Pipeline.SummaryPageSize
	jobs := map[string]pipeline.Job{
		pipeline.JobBackfill: pipeline.NewBackfiller(deps.TradingData, deps.Markets, deps.Transactions, pipeline.BackfillConfig{
			Wallets:       cfg.Pipeline.Wallets,
			SeedMarkets:   cfg.Pipeline.SeedMarkets,
			MaxOrders:     cfg.Pipeline.MaxOrdersPerWallet,
			MaxSeedOrders: cfg.Dome.MaxResults,
			PageSize:      cfg.Dome.PageSize,
			BatchSize:     cfg.Pipeline.InsertBatchSize,
		}, logger),
		pipeline.JobRefresh:    pipeline.NewMarketRefresher(deps.TradingData, deps.Markets, markets, logger),
		pipeline.JobSummaries:  pipeline.NewSummaryJob(deps.Transactions, pnlSvc, workers, pageSize, logger),
		pipeline.JobPnL:        pipeline.NewPnlJob(deps.Transactions, pnlSvc, workers, pageSize, logger),
		pipeline.JobCategories: pipeline.NewCategoryJob(deps.Markets, nil, logger),
		pipeline.JobEmbeddings: pipeline.NewEmbeddingJob(deps.Markets, deps.Embedder, dim, cfg.Embedding.BatchSize, logger),
		pipeline.JobProfiles:   pipeline.NewProfileJob(deps.Summaries, profileSvc, deps.Archiver, workers, pageSize, logger),
		pipeline.JobCluster: pipeline.NewClusterJob(deps.Markets, cluster.Options{
			K:          cfg.Pipeline.ClusterK,
			Iterations: cfg.Pipeline.ClusterIterations,
			Seed:       cfg.Pipeline.ClusterSeed,
		}, dim, logger),
	}

	orchestrator := pipeline.NewOrchestrator(jobs, logger)
	if deps.JobRuns != nil {
		orchestrator.WithRunLog(deps.JobRuns)
	}
	if deps.Notifier != nil {
		orchestrator.WithObserver(deps.Notifier)
	}

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bg.Close(ctx); err != nil {
			logger.Warn("background tasks did not drain", slog.String("error", err.Error()))
		}
	})

	return &components{
		deps:    deps,
		markets: markets,
		recs: service.NewRecommendationService(deps.Markets, recommend.NewRanker(deps.Profiles, logger),
			service.RecommendationConfig{
				DefaultLimit:  cfg.Ranker.DefaultLimit,
				MaxLimit:      cfg.Ranker.MaxLimit,
				CandidatePool: cfg.Ranker.CandidatePool,
			}, logger),
		walletProfile: service.NewWalletProfileService(deps.Categories, deps.Profiles, deps.Markets,
			service.WalletProfileConfig{
				MatchThreshold: cfg.Ranker.MatchThreshold,
				TopMatches:     cfg.Ranker.ProfileTopMatches,
			}, logger),
		partner:      recommend.NewPartnerRanker(deps.Profiles, deps.Markets, deps.Embedder, bg, dim, logger),
		orchestrator: orchestrator,
	}
}

// ServerMode serves the HTTP API until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, c *components) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, c, nil)
	return g.Wait()
}

// JobMode runs one batch job to completion.
func (a *App) JobMode(ctx context.Context, c *components, name string) error {
	_, err := c.orchestrator.RunJob(ctx, name)
	return err
}

// PipelineMode runs every pipeline job once, in order.
func (a *App) PipelineMode(ctx context.Context, c *components) error {
	return c.orchestrator.RunPipeline(ctx)
}

// SchedulerMode runs the pipeline on the configured cron schedule. When the
// server is enabled it is served alongside and POST /api/pipeline/trigger
// requests an immediate run.
func (a *App) SchedulerMode(ctx context.Context, c *components) error {
	g, ctx := errgroup.WithContext(ctx)

	trigger := make(chan struct{}, 1)
	sched := pipeline.NewScheduler(c.orchestrator, a.cfg.Pipeline.Schedule, a.base).WithTrigger(trigger)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, c, trigger)
	}
	return g.Wait()
}

// startHTTPServer adds an HTTP server goroutine to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
// pipelineTriggerCh is optional; when non-nil, POST /api/pipeline/trigger
// sends on it to request one pipeline run.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	c *components,
	pipelineTriggerCh chan<- struct{},
) {
	checks := make(map[string]handler.HealthCheck, len(c.deps.Checks))
	for name, fn := range c.deps.Checks {
		checks[name] = fn
	}

	ph := handler.NewPipelineHandler(a.base)
	if pipelineTriggerCh != nil {
		ph = ph.WithTriggerChannel(pipelineTriggerCh)
	}
	if c.deps.JobRuns != nil {
		ph = ph.WithRunLog(c.deps.JobRuns)
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKeys:           a.cfg.Server.APIKeys,
		PartnerRateLimit:  a.cfg.Server.PartnerRateLimit,
		PartnerRateWindow: time.Minute,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(checks, a.base),
		Status:        handler.NewStatusHandler(a.cfg.Mode, time.Now()),
		Markets:       handler.NewMarketHandler(c.markets, c.recs, a.base),
		WalletProfile: handler.NewWalletProfileHandler(c.walletProfile, a.base),
		Partner:       handler.NewPartnerHandler(c.partner, a.base),
		Pipeline:      ph,
	}, c.deps.RateLimiter, a.base)

	g.Go(func() error {
		port := a.cfg.Server.Port
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
