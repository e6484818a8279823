package model

import "time"

// BudgetWindow is one capped spend window. It resets lazily once now passes
// WindowStart + Duration.
type BudgetWindow struct {
	Name        string
	WindowStart time.Time
	Duration    time.Duration
	SpentUnits  int64
	CapUnits    int64
}

// Expired reports whether the window must be rolled forward at now.
func (w BudgetWindow) Expired(now time.Time) bool {
	return !now.Before(w.WindowStart.Add(w.Duration))
}

// RollForward resets the window if it has expired.
func (w *BudgetWindow) RollForward(now time.Time) {
	if w.Expired(now) {
		w.WindowStart = now
		w.SpentUnits = 0
	}
}

// Fits reports whether units can be added without exceeding the cap.
func (w BudgetWindow) Fits(units int64) bool {
	return w.SpentUnits+units <= w.CapUnits
}

func (w BudgetWindow) Remaining() int64 {
	if w.SpentUnits >= w.CapUnits {
		return 0
	}
	return w.CapUnits - w.SpentUnits
}

// BudgetWindowSpec declares a window a ledger enforces.
type BudgetWindowSpec struct {
	Name     string
	Duration time.Duration
	CapUnits int64
}
