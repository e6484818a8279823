// Command demo runs the full pipeline in memory with the offline provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ai-transform-service/internal/config"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/adapter"
	aiAdapters "ai-transform-service/internal/infra/adapters/ai"
	"ai-transform-service/internal/infra/adapters/inspector"
	"ai-transform-service/internal/infra/events"
	"ai-transform-service/internal/infra/logging"
	"ai-transform-service/internal/infra/memory"
	"ai-transform-service/internal/usecase"
)

func main() {
	sessions := flag.Int("sessions", 3, "number of demo sessions")
	submits := flag.Int("submits", 2, "concurrent submits per session")
	budgetCap := flag.Int64("budget", 40, "hourly budget cap in units")
	disabled := flag.Bool("disabled", false, "start with generation disabled")
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)
	if err := run(logger, *sessions, *submits, *budgetCap, !*disabled); err != nil {
		logger.Error().Err(err).Msg("demo failed")
		os.Exit(1)
	}
}

func run(logger *zerolog.Logger, sessions, submits int, budgetCap int64, enabled bool) error {
	ctx := context.Background()

	jobs := memory.NewJobStore(time.Now)
	repo := memory.NewSessionRepo()
	blobs := memory.NewBlobStore()
	ledger, err := memory.NewBudgetLedger(time.Now, model.BudgetWindowSpec{Name: "hourly", Duration: time.Hour, CapUnits: budgetCap})
	if err != nil {
		return err
	}

	provider := aiAdapters.NewNoopProvider()
	seed, err := provider.Generate(ctx, "source photo", adapter.Image{})
	if err != nil {
		return err
	}
	for i := 1; i <= sessions; i++ {
		id := fmt.Sprintf("demo-%d", i)
		path := "uploads/" + id + ".png"
		if _, err := blobs.Put(ctx, path, seed.Data, seed.ContentType); err != nil {
			return err
		}
		repo.Put(&model.Session{
			ID:               id,
			PhotoPath:        path,
			PhotoContentType: seed.ContentType,
			Profile: model.Profile{
				DisplayName: fmt.Sprintf("Runner %d", i), Goal: "finish a half marathon",
				Age: 30 + i, HeightCm: 175, CurrentWeightKg: 84, TargetWeightKg: 76, ActivityLevel: "moderate",
			},
		})
	}

	prompts, err := usecase.NewPromptBuilder(aiAdapters.NewTokenCounter(logger), 200)
	if err != nil {
		return err
	}
	broker := events.NewBroker(64, logger)
	cfg := &config.Config{Generation: config.GenerationConfig{Steps: config.DefaultSteps()}}

	uc, err := usecase.NewGenerationUseCase(usecase.GenerationDeps{
		Jobs:     jobs,
		Sessions: repo,
		Budget:   ledger,
		Blobs:    blobs,
		Provider: provider,
		Gate: usecase.NewQualityGate(inspector.NewStructural(), usecase.QualityThresholds{
			MinFaceConfidence: 0.6, MaxArtifactScore: 0.35,
		}),
		Prompts: prompts,
		Switch:  usecase.NewKillSwitch(usecase.StaticFlag(enabled), time.Second, time.Now, logger),
		Sink:    broker,
		Log:     logger,
	}, usecase.GenerationOptions{
		Steps:       cfg.PipelineSteps(),
		Lease:       30 * time.Second,
		StepTimeout: 10 * time.Second,
		Retry:       usecase.RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 2},
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= sessions; i++ {
		id := fmt.Sprintf("demo-%d", i)
		evs, cancel := broker.Subscribe(id)
		g.Go(func() error {
			defer cancel()
			for ev := range evs {
				logger.Info().Str("session_id", ev.SessionID).Str("event", string(ev.Type)).
					Str("step", ev.StepID).Str("quality", string(ev.QualityStatus)).Msg("progress")
				if ev.Type == model.EventJobCompleted || ev.Type == model.EventJobFailed {
					return nil
				}
			}
			return nil
		})
		for j := 0; j < submits; j++ {
			g.Go(func() error {
				res, err := uc.Submit(gctx, id)
				if err != nil {
					return err
				}
				logger.Info().Str("session_id", id).Str("status", string(res.Status)).
					Strs("completed", res.CompletedSteps).Str("reason", string(res.Reason)).Msg("submit returned")
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := 1; i <= sessions; i++ {
		id := fmt.Sprintf("demo-%d", i)
		arts, err := repo.ListArtifacts(ctx, id)
		if err != nil {
			return err
		}
		for _, a := range arts {
			fmt.Printf("%s  %-12s %-9s attempts=%d %s\n", id, a.StepID, a.QualityStatus, a.Attempts, a.Path)
		}
	}
	windows, err := ledger.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, w := range windows {
		fmt.Printf("budget %s: spent %d of %d\n", w.Name, w.SpentUnits, w.CapUnits)
	}
	return nil
}
