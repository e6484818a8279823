package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-transform-service/internal/domain/ports/repository"
	"ai-transform-service/internal/infra/metrics"
)

// BudgetReporter exports the remaining units of each budget window.
type BudgetReporter struct {
	interval time.Duration
	ledger   repository.BudgetLedger
	log      *zerolog.Logger
}

func NewBudgetReporter(interval time.Duration, ledger repository.BudgetLedger, logger *zerolog.Logger) *BudgetReporter {
	l := logger.With().Str("component", "BudgetReporter").Logger()
	return &BudgetReporter{interval: interval, ledger: ledger, log: &l}
}

func (r *BudgetReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.report(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *BudgetReporter) report(ctx context.Context) {
	windows, err := r.ledger.Snapshot(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("budget snapshot failed")
		return
	}
	for _, w := range windows {
		metrics.SetBudgetRemaining(w.Name, w.Remaining())
	}
}
