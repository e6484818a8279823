package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"
)

// BudgetLedger enforces its windows under a single mutex.
type BudgetLedger struct {
	mu      sync.Mutex
	windows []model.BudgetWindow
	now     func() time.Time
}

var _ repository.BudgetLedger = (*BudgetLedger)(nil)

func NewBudgetLedger(now func() time.Time, specs ...model.BudgetWindowSpec) (*BudgetLedger, error) {
	if now == nil {
		now = time.Now
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("budget ledger needs at least one window")
	}
	start := now()
	l := &BudgetLedger{now: now}
	for _, s := range specs {
		if s.Duration <= 0 || s.CapUnits < 0 {
			return nil, fmt.Errorf("invalid budget window %q", s.Name)
		}
		l.windows = append(l.windows, model.BudgetWindow{
			Name: s.Name, WindowStart: start, Duration: s.Duration, CapUnits: s.CapUnits,
		})
	}
	return l, nil
}

func (l *BudgetLedger) TryReserve(_ context.Context, units int64) (bool, error) {
	if units < 0 {
		return false, fmt.Errorf("negative reservation %d", units)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollForward()
	for _, w := range l.windows {
		if !w.Fits(units) {
			return false, nil
		}
	}
	for i := range l.windows {
		l.windows[i].SpentUnits += units
	}
	return true, nil
}

func (l *BudgetLedger) RecordSpend(_ context.Context, units int64) error {
	if units < 0 {
		return fmt.Errorf("negative spend %d", units)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollForward()
	for i := range l.windows {
		l.windows[i].SpentUnits += units
	}
	return nil
}

func (l *BudgetLedger) Snapshot(context.Context) ([]model.BudgetWindow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollForward()
	out := make([]model.BudgetWindow, len(l.windows))
	copy(out, l.windows)
	return out, nil
}

func (l *BudgetLedger) rollForward() {
	now := l.now()
	for i := range l.windows {
		l.windows[i].RollForward(now)
	}
}
