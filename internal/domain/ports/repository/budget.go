package repository

import (
	"context"

	"ai-transform-service/internal/domain/model"
)

// BudgetLedger caps cumulative spend over one or more time windows.
// Implementations must make TryReserve atomic across all callers sharing the
// ledger: a concurrent check-then-increment must never exceed any cap.
type BudgetLedger interface {
	// TryReserve adds units to every window if all of them fit, otherwise none.
	TryReserve(ctx context.Context, units int64) (bool, error)
	// RecordSpend adds units unconditionally.
	RecordSpend(ctx context.Context, units int64) error
	Snapshot(ctx context.Context) ([]model.BudgetWindow, error)
}
