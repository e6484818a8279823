// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ai-transform-service/internal/config"
	"ai-transform-service/internal/domain/ports/adapter"
	"ai-transform-service/internal/domain/ports/repository"
	aiAdapters "ai-transform-service/internal/infra/adapters/ai"
	"ai-transform-service/internal/infra/adapters/blob"
	"ai-transform-service/internal/infra/adapters/inspector"
	tele "ai-transform-service/internal/infra/adapters/telegram"
	pg "ai-transform-service/internal/infra/db/postgres"
	"ai-transform-service/internal/infra/events"
	httpapi "ai-transform-service/internal/infra/http"
	"ai-transform-service/internal/infra/logging"
	"ai-transform-service/internal/infra/memory"
	"ai-transform-service/internal/infra/metrics"
	red "ai-transform-service/internal/infra/redis"
	"ai-transform-service/internal/infra/sched"
	"ai-transform-service/internal/infra/worker"
	"ai-transform-service/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("service stopped")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	tm := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
	}

	// ---- Repositories ----
	jobs := pg.NewJobRepo(pool)
	var sessions repository.SessionRepository = pg.NewSessionRepo(pool, tm)
	if redisClient != nil {
		sessions = pg.NewSessionRepoCacheDecorator(sessions, redisClient)
	}
	ledger, err := newBudgetLedger(ctx, cfg, pool, tm, redisClient)
	if err != nil {
		return fmt.Errorf("budget ledger: %w", err)
	}

	// ---- Kill switch ----
	var flags adapter.FlagSource = usecase.StaticFlag(cfg.KillSwitch.Enabled)
	if cfg.KillSwitch.Source == "redis" {
		flags = red.NewFlagSource(redisClient, cfg.KillSwitch.Key, cfg.KillSwitch.DefaultEnabled)
	}
	killSwitch := usecase.NewKillSwitch(flags, cfg.KillSwitch.TTL, time.Now, logger)

	// ---- Blobs ----
	signingKey := cfg.Blob.SigningKey
	if signingKey == "" {
		if !cfg.Runtime.Dev {
			return errors.New("blob.signing_key is required outside dev mode")
		}
		logger.Warn().Msg("blob.signing_key not set; using an insecure dev key")
		signingKey = "dev-insecure-signing-key"
	}
	signer, err := blob.NewSigner(signingKey)
	if err != nil {
		return err
	}
	blobs, err := blob.NewFSStore(cfg.Blob.Root, cfg.HTTP.PublicBaseURL, signer)
	if err != nil {
		return err
	}

	// ---- AI ----
	provider, err := aiAdapters.NewProviderFromConfig(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}
	var insp adapter.ImageInspector = inspector.NewStructural()
	if cfg.AI.VisionInspect {
		vision, err := inspector.NewVision(provider)
		if err != nil {
			return err
		}
		insp = inspector.NewComposite(insp, vision)
	}
	var inspectionCost int64
	if cfg.AI.VisionInspect {
		inspectionCost = cfg.Quality.InspectionCostUnits
	}
	gate := usecase.NewQualityGate(insp, usecase.QualityThresholds{
		MinFaceConfidence: cfg.Quality.MinFaceConfidence,
		MaxArtifactScore:  cfg.Quality.MaxArtifactScore,
	})
	prompts, err := usecase.NewPromptBuilder(aiAdapters.NewTokenCounter(logger), cfg.Generation.MaxNoteTokens)
	if err != nil {
		return err
	}

	// ---- Alerts ----
	var notifier adapter.Notifier = tele.NewNoopNotifier(logger)
	if cfg.Alerts.TelegramToken != "" {
		n, err := tele.NewNotifier(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID, logger)
		if err != nil {
			return fmt.Errorf("telegram notifier: %w", err)
		}
		notifier = n
	}

	// ---- Orchestrator ----
	broker := events.NewBroker(32, logger)
	generation, err := usecase.NewGenerationUseCase(usecase.GenerationDeps{
		Jobs:     jobs,
		Sessions: sessions,
		Budget:   ledger,
		Blobs:    blobs,
		Provider: provider,
		Gate:     gate,
		Prompts:  prompts,
		Switch:   killSwitch,
		Sink:     broker,
		Notifier: notifier,
		Log:      logger,
	}, usecase.GenerationOptions{
		Steps:          cfg.PipelineSteps(),
		Lease:          cfg.Generation.Lease,
		StepTimeout:    cfg.Generation.StepTimeout,
		InspectionCost: inspectionCost,
		Retry: usecase.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
			Jitter:      cfg.Retry.Jitter,
		},
	})
	if err != nil {
		return err
	}

	// ---- Workers ----
	workers := worker.NewPool(cfg.Worker.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()
	processor := worker.NewGenerationProcessor(generation, workers, cfg.HTTP.SubmitTimeout, logger)
	recovery := sched.NewRecoveryWorker(cfg.Recovery.Interval, cfg.Recovery.Batch, jobs, processor, logger)
	reporter := sched.NewBudgetReporter(30*time.Second, ledger, logger)

	// ---- HTTP ----
	deps := httpapi.Deps{
		Generation: generation,
		Queue:      processor,
		Sessions:   sessions,
		Blobs:      blobs,
		Verifier:   blobs,
		Events:     broker,
		Log:        logger,
	}
	if redisClient != nil {
		deps.Limiter = red.NewRateLimiter(redisClient)
	}
	server := httpapi.NewServer(deps, httpapi.Options{
		Port:          cfg.HTTP.Port,
		APIKey:        cfg.HTTP.APIKey,
		SubmitTimeout: cfg.HTTP.SubmitTimeout,
		SubmitLimit:   cfg.HTTP.SubmitLimit,
		SubmitWindow:  cfg.HTTP.SubmitWindow,
		URLTTL:        cfg.Blob.URLTTL,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return ignoreCanceled(recovery.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(reporter.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(reportPoolStats(gctx, pool)) })

	logger.Info().Str("version", version).Int("steps", len(cfg.Generation.Steps)).Msg("service started")
	return g.Wait()
}

func newBudgetLedger(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, tm repository.TransactionManager, redisClient *red.Client) (repository.BudgetLedger, error) {
	specs := cfg.BudgetSpecs()
	switch cfg.Budget.Backend {
	case "redis":
		return red.NewBudgetLedger(redisClient, cfg.Budget.Ledger, specs)
	case "memory":
		return memory.NewBudgetLedger(time.Now, specs...)
	default:
		return pg.NewBudgetLedger(ctx, pool, tm, cfg.Budget.Ledger, specs)
	}
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		st := pool.Stat()
		metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
