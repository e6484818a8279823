package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-transform-service/internal/domain/ports/repository"
	"ai-transform-service/internal/infra/metrics"
	"ai-transform-service/internal/infra/worker"
)

// Enqueuer hands a session to whatever runs generation asynchronously.
type Enqueuer interface {
	Enqueue(sessionID string) (bool, error)
}

// RecoveryWorker periodically resubmits jobs whose lease lapsed before they
// reached a terminal state, e.g. after a crash.
type RecoveryWorker struct {
	interval time.Duration
	batch    int
	jobs     repository.JobRepository
	queue    Enqueuer
	log      *zerolog.Logger
}

func NewRecoveryWorker(interval time.Duration, batch int, jobs repository.JobRepository, queue Enqueuer, logger *zerolog.Logger) *RecoveryWorker {
	recLog := logger.With().Str("component", "RecoveryWorker").Logger()
	return &RecoveryWorker{
		interval: interval,
		batch:    batch,
		jobs:     jobs,
		queue:    queue,
		log:      &recLog,
	}
}

func (w *RecoveryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting recovery worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping recovery worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("recovery worker error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("recoverable jobs resubmitted")
			}
		}
	}
}

// RunOnce resubmits one batch and returns how many sessions were queued.
func (w *RecoveryWorker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.ListRecoverable(ctx, w.batch)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, j := range jobs {
		ok, err := w.queue.Enqueue(j.SessionID)
		switch {
		case errors.Is(err, worker.ErrQueueFull):
			metrics.IncRecovered("queue_full")
			return queued, nil
		case err != nil:
			metrics.IncRecovered("error")
			return queued, err
		case ok:
			metrics.IncRecovered("queued")
			queued++
		default:
			metrics.IncRecovered("already_queued")
		}
	}
	return queued, nil
}
