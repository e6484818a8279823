//go:build !integration

package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)} }

func TestJobStoreAcquireLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(nil)
	_, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)

	const workers = 32
	var winners atomic.Int32
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := store.AcquireLock(ctx, "s1", time.Minute)
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, domain.ErrAlreadyLocked):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), winners.Load())
}

func TestJobStoreGetOrCreateConverges(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(nil)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := store.GetOrCreate(ctx, "s1")
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, store.jobs, 1)
}

func TestJobStoreLeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	store := NewJobStore(c.Now)
	_, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)

	tok, err := store.AcquireLock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	j, _ := store.Get(ctx, "s1")
	assert.Equal(t, model.JobStateLocked, j.State)
	assert.Equal(t, 1, j.Attempts)

	ok, err := store.RenewLock(ctx, "s1", tok, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	j, _ = store.Get(ctx, "s1")
	assert.Equal(t, model.JobStateInProgress, j.State)

	require.NoError(t, store.RecordStepCompleted(ctx, "s1", tok, "m1", model.QualityAccepted))
	require.NoError(t, store.RecordStepCompleted(ctx, "s1", tok, "m2", model.QualityDegraded))
	require.NoError(t, store.RecordStepCompleted(ctx, "s1", tok, "m2", model.QualityDegraded))

	// Lease expires; a second worker takes over and the first token is dead.
	c.Advance(2 * time.Minute)
	tok2, err := store.AcquireLock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, tok, tok2)

	ok, err = store.RenewLock(ctx, "s1", tok, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, store.RecordStepCompleted(ctx, "s1", tok, "m3", model.QualityAccepted), domain.ErrLockLost)
	assert.ErrorIs(t, store.MarkCompleted(ctx, "s1", tok), domain.ErrLockLost)

	require.NoError(t, store.MarkCompleted(ctx, "s1", tok2))
	j, _ = store.Get(ctx, "s1")
	assert.Equal(t, model.JobStateCompleted, j.State)
	assert.Equal(t, []string{"m1", "m2"}, j.CompletedSteps)
	assert.Equal(t, []string{"m2"}, j.DegradedSteps)
	assert.Empty(t, j.LockToken)
	assert.Equal(t, 2, j.Attempts)

	_, err = store.AcquireLock(ctx, "s1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrJobTerminal)
}

func TestJobStoreMarkFailedKeepsKind(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(nil)
	_, _ = store.GetOrCreate(ctx, "s1")
	tok, err := store.AcquireLock(ctx, "s1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(ctx, "s1", tok, domain.KindBudgetExceeded))
	j, _ := store.Get(ctx, "s1")
	assert.Equal(t, model.JobStateFailed, j.State)
	assert.Equal(t, domain.KindBudgetExceeded, j.LastError)
}

func TestJobStoreListRecoverable(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	store := NewJobStore(c.Now)
	for _, id := range []string{"live", "crashed", "done"} {
		_, _ = store.GetOrCreate(ctx, id)
	}
	_, _ = store.AcquireLock(ctx, "live", time.Hour)
	_, _ = store.AcquireLock(ctx, "crashed", time.Minute)
	tok, _ := store.AcquireLock(ctx, "done", time.Hour)
	require.NoError(t, store.MarkCompleted(ctx, "done", tok))
	c.Advance(2 * time.Minute)

	jobs, err := store.ListRecoverable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "crashed", jobs[0].SessionID)
}

func TestJobStoreGetMissing(t *testing.T) {
	_, err := NewJobStore(nil).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBudgetLedgerNeverExceedsCap(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewBudgetLedger(nil, model.BudgetWindowSpec{Name: "hourly", Duration: time.Hour, CapUnits: 100})
	require.NoError(t, err)

	var granted atomic.Int64
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			ok, err := ledger.TryReserve(ctx, 7)
			if ok {
				granted.Add(7)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	snap, err := ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(98), granted.Load())
	assert.Equal(t, granted.Load(), snap[0].SpentUnits)
}

func TestBudgetLedgerAllWindowsOrNone(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewBudgetLedger(nil,
		model.BudgetWindowSpec{Name: "hourly", Duration: time.Hour, CapUnits: 100},
		model.BudgetWindowSpec{Name: "daily", Duration: 24 * time.Hour, CapUnits: 10},
	)
	require.NoError(t, err)

	ok, err := ledger.TryReserve(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ledger.TryReserve(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, _ := ledger.Snapshot(ctx)
	assert.Equal(t, int64(8), snap[0].SpentUnits)
	assert.Equal(t, int64(8), snap[1].SpentUnits)
}

func TestBudgetLedgerRollsForward(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	ledger, err := NewBudgetLedger(c.Now, model.BudgetWindowSpec{Name: "hourly", Duration: time.Hour, CapUnits: 10})
	require.NoError(t, err)

	ok, _ := ledger.TryReserve(ctx, 10)
	assert.True(t, ok)
	ok, _ = ledger.TryReserve(ctx, 1)
	assert.False(t, ok)

	c.Advance(time.Hour)
	ok, _ = ledger.TryReserve(ctx, 4)
	assert.True(t, ok)
	require.NoError(t, ledger.RecordSpend(ctx, 3))

	snap, _ := ledger.Snapshot(ctx)
	assert.Equal(t, int64(7), snap[0].SpentUnits)
	assert.Equal(t, c.Now(), snap[0].WindowStart)
}

func TestSessionRepoKeepsLatestArtifactPerStep(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo()
	repo.Put(&model.Session{ID: "s1", PhotoPath: "uploads/s1.jpg"})

	require.NoError(t, repo.WriteArtifacts(ctx, "s1", []*model.Artifact{
		{ID: "a2", StepID: "m2", Ordinal: 2},
		{ID: "a1", StepID: "m1", Ordinal: 1, Data: []byte("x")},
	}))
	require.NoError(t, repo.WriteArtifacts(ctx, "s1", []*model.Artifact{{ID: "a1b", StepID: "m1", Ordinal: 1}}))

	arts, err := repo.ListArtifacts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "a1b", arts[0].ID)
	assert.Equal(t, "a2", arts[1].ID)
	assert.Nil(t, arts[0].Data)

	assert.ErrorIs(t, repo.WriteArtifacts(ctx, "nope", nil), domain.ErrNotFound)
}

func TestBlobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewBlobStore()
	path, err := s.Put(ctx, "/sessions/s1/m1/a.png", []byte{1, 2}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "sessions/s1/m1/a.png", path)

	data, ct, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
	assert.Equal(t, "image/png", ct)

	u, err := s.SignedURL(ctx, path, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "mem:///sessions/s1/m1/a.png", u)

	_, _, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
