package postgres

import (
	"context"
	"fmt"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.BudgetLedger = (*budgetLedger)(nil)

// budgetLedger serializes reservations with SELECT ... FOR UPDATE on the
// ledger's window rows, so concurrent instances never overshoot a cap.
type budgetLedger struct {
	pool   *pgxpool.Pool
	tm     repository.TransactionManager
	ledger string
}

// NewBudgetLedger upserts the window rows for ledger and drops windows no
// longer configured. Existing spend is kept; caps and durations follow specs.
func NewBudgetLedger(ctx context.Context, pool *pgxpool.Pool, tm repository.TransactionManager, ledger string, specs []model.BudgetWindowSpec) (*budgetLedger, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: budget ledger needs at least one window", domain.ErrInvalidArgument)
	}
	const q = `
INSERT INTO budget_windows (ledger, name, window_start, duration_ms, spent_units, cap_units)
VALUES ($1, $2, now(), $3, 0, $4)
ON CONFLICT (ledger, name) DO UPDATE SET
  duration_ms = EXCLUDED.duration_ms,
  cap_units = EXCLUDED.cap_units;`

	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := execSQL(ctx, pool, tx, `DELETE FROM budget_windows WHERE ledger = $1 AND NOT (name = ANY($2))`, ledger, names); err != nil {
			return fmt.Errorf("prune budget windows: %w", err)
		}
		for _, s := range specs {
			if _, err := execSQL(ctx, pool, tx, q, ledger, s.Name, s.Duration.Milliseconds(), s.CapUnits); err != nil {
				return fmt.Errorf("upsert budget window %q: %w", s.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &budgetLedger{pool: pool, tm: tm, ledger: ledger}, nil
}

func (l *budgetLedger) TryReserve(ctx context.Context, units int64) (bool, error) {
	if units < 0 {
		return false, fmt.Errorf("%w: negative reservation", domain.ErrInvalidArgument)
	}
	var granted bool
	err := l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		windows, now, err := l.lockWindows(ctx, tx)
		if err != nil {
			return err
		}
		for i := range windows {
			windows[i].RollForward(now)
			if !windows[i].Fits(units) {
				return nil
			}
		}
		for i := range windows {
			windows[i].SpentUnits += units
		}
		granted = true
		return l.save(ctx, tx, windows)
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (l *budgetLedger) RecordSpend(ctx context.Context, units int64) error {
	if units < 0 {
		return fmt.Errorf("%w: negative spend", domain.ErrInvalidArgument)
	}
	return l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		windows, now, err := l.lockWindows(ctx, tx)
		if err != nil {
			return err
		}
		for i := range windows {
			windows[i].RollForward(now)
			windows[i].SpentUnits += units
		}
		return l.save(ctx, tx, windows)
	})
}

func (l *budgetLedger) Snapshot(ctx context.Context) ([]model.BudgetWindow, error) {
	windows, now, err := l.selectWindows(ctx, nil, "")
	if err != nil {
		return nil, err
	}
	for i := range windows {
		windows[i].RollForward(now)
	}
	return windows, nil
}

func (l *budgetLedger) lockWindows(ctx context.Context, tx repository.Tx) ([]model.BudgetWindow, time.Time, error) {
	windows, now, err := l.selectWindows(ctx, tx, " FOR UPDATE")
	if err != nil {
		return nil, now, err
	}
	if len(windows) == 0 {
		return nil, now, fmt.Errorf("budget ledger %q has no windows: %w", l.ledger, domain.ErrNotFound)
	}
	return windows, now, nil
}

func (l *budgetLedger) selectWindows(ctx context.Context, tx repository.Tx, suffix string) ([]model.BudgetWindow, time.Time, error) {
	q := `SELECT name, window_start, duration_ms, spent_units, cap_units, now()
FROM budget_windows WHERE ledger = $1 ORDER BY name` + suffix

	var now time.Time
	rows, err := queryRows(ctx, l.pool, tx, q, l.ledger)
	if err != nil {
		return nil, now, err
	}
	defer rows.Close()

	var out []model.BudgetWindow
	for rows.Next() {
		var (
			w  model.BudgetWindow
			ms int64
		)
		if err := rows.Scan(&w.Name, &w.WindowStart, &ms, &w.SpentUnits, &w.CapUnits, &now); err != nil {
			return nil, now, domain.ErrReadDatabaseRow
		}
		w.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, w)
	}
	return out, now, rows.Err()
}

func (l *budgetLedger) save(ctx context.Context, tx repository.Tx, windows []model.BudgetWindow) error {
	const q = `UPDATE budget_windows SET window_start = $3, spent_units = $4 WHERE ledger = $1 AND name = $2`
	for _, w := range windows {
		if _, err := execSQL(ctx, l.pool, tx, q, l.ledger, w.Name, w.WindowStart, w.SpentUnits); err != nil {
			return fmt.Errorf("update budget window %q: %w", w.Name, err)
		}
	}
	return nil
}
