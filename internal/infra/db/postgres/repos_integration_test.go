//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"

	"golang.org/x/sync/errgroup"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewJobRepo(testPool)

	t.Run("concurrent GetOrCreate converges on one record", func(t *testing.T) {
		cleanup(t)
		var g errgroup.Group
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				_, err := repo.GetOrCreate(ctx, "s1")
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
		var n int
		if err := testPool.QueryRow(ctx, `SELECT count(*) FROM generation_jobs`).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Fatalf("expected 1 job row, got %d", n)
		}
	})

	t.Run("only one worker acquires the lease", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.GetOrCreate(ctx, "s1"); err != nil {
			t.Fatal(err)
		}
		var winners atomic.Int32
		var g errgroup.Group
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				_, err := repo.AcquireLock(ctx, "s1", time.Minute)
				if err == nil {
					winners.Add(1)
					return nil
				}
				if errors.Is(err, domain.ErrAlreadyLocked) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		if winners.Load() != 1 {
			t.Fatalf("expected exactly one winner, got %d", winners.Load())
		}
	})

	t.Run("lease lifecycle and stale tokens", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.GetOrCreate(ctx, "s1"); err != nil {
			t.Fatal(err)
		}
		tok, err := repo.AcquireLock(ctx, "s1", time.Minute)
		if err != nil {
			t.Fatalf("AcquireLock: %v", err)
		}
		ok, err := repo.RenewLock(ctx, "s1", tok, time.Minute)
		if err != nil || !ok {
			t.Fatalf("RenewLock: %v %v", ok, err)
		}
		job, _ := repo.Get(ctx, "s1")
		if job.State != model.JobStateInProgress {
			t.Errorf("expected in_progress after renew, got %s", job.State)
		}

		if err := repo.RecordStepCompleted(ctx, "s1", tok, "m1", model.QualityAccepted); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordStepCompleted(ctx, "s1", tok, "m2", model.QualityDegraded); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordStepCompleted(ctx, "s1", tok, "m2", model.QualityDegraded); err != nil {
			t.Fatal(err)
		}

		// Force the lease to lapse and let a second worker in.
		if _, err := testPool.Exec(ctx, `UPDATE generation_jobs SET lock_expires_at = now() - interval '1 second'`); err != nil {
			t.Fatal(err)
		}
		recoverable, err := repo.ListRecoverable(ctx, 10)
		if err != nil || len(recoverable) != 1 {
			t.Fatalf("expected one recoverable job, got %d (%v)", len(recoverable), err)
		}
		tok2, err := repo.AcquireLock(ctx, "s1", time.Minute)
		if err != nil {
			t.Fatalf("second AcquireLock: %v", err)
		}
		if ok, _ := repo.RenewLock(ctx, "s1", tok, time.Minute); ok {
			t.Error("stale token must not renew")
		}
		if err := repo.MarkCompleted(ctx, "s1", tok); !errors.Is(err, domain.ErrLockLost) {
			t.Errorf("expected ErrLockLost for stale token, got %v", err)
		}
		if err := repo.MarkCompleted(ctx, "s1", tok2); err != nil {
			t.Fatal(err)
		}

		job, _ = repo.Get(ctx, "s1")
		if job.State != model.JobStateCompleted || job.Attempts != 2 || job.LockToken != "" {
			t.Errorf("unexpected final job %+v", job)
		}
		if len(job.CompletedSteps) != 2 || len(job.DegradedSteps) != 1 || job.DegradedSteps[0] != "m2" {
			t.Errorf("unexpected steps %v / %v", job.CompletedSteps, job.DegradedSteps)
		}
		if _, err := repo.AcquireLock(ctx, "s1", time.Minute); !errors.Is(err, domain.ErrJobTerminal) {
			t.Errorf("expected ErrJobTerminal, got %v", err)
		}
	})

	t.Run("MarkFailed keeps the kind", func(t *testing.T) {
		cleanup(t)
		_, _ = repo.GetOrCreate(ctx, "s1")
		tok, _ := repo.AcquireLock(ctx, "s1", time.Minute)
		if err := repo.MarkFailed(ctx, "s1", tok, domain.KindProviderRejected); err != nil {
			t.Fatal(err)
		}
		job, _ := repo.Get(ctx, "s1")
		if job.State != model.JobStateFailed || job.LastError != domain.KindProviderRejected {
			t.Errorf("unexpected job %+v", job)
		}
	})

	t.Run("Get on a missing job", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.Get(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBudgetLedger_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	tm := NewTxManager(testPool)

	t.Run("concurrent reservations never exceed the cap", func(t *testing.T) {
		cleanup(t)
		ledger, err := NewBudgetLedger(ctx, testPool, tm, "test", []model.BudgetWindowSpec{
			{Name: "hourly", Duration: time.Hour, CapUnits: 50},
			{Name: "daily", Duration: 24 * time.Hour, CapUnits: 1000},
		})
		if err != nil {
			t.Fatal(err)
		}

		var granted atomic.Int64
		var g errgroup.Group
		for i := 0; i < 20; i++ {
			g.Go(func() error {
				ok, err := ledger.TryReserve(ctx, 5)
				if ok {
					granted.Add(5)
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("TryReserve failed: %v", err)
		}
		if granted.Load() != 50 {
			t.Errorf("expected 50 units granted, got %d", granted.Load())
		}

		snap, err := ledger.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, w := range snap {
			if w.SpentUnits != 50 {
				t.Errorf("window %s: expected 50 spent, got %d", w.Name, w.SpentUnits)
			}
		}
	})

	t.Run("RecordSpend is unconditional and windows roll forward", func(t *testing.T) {
		cleanup(t)
		ledger, err := NewBudgetLedger(ctx, testPool, tm, "test", []model.BudgetWindowSpec{{Name: "hourly", Duration: time.Hour, CapUnits: 10}})
		if err != nil {
			t.Fatal(err)
		}
		if err := ledger.RecordSpend(ctx, 12); err != nil {
			t.Fatal(err)
		}
		if ok, _ := ledger.TryReserve(ctx, 1); ok {
			t.Error("reservation over cap must be denied")
		}
		if _, err := testPool.Exec(ctx, `UPDATE budget_windows SET window_start = now() - interval '2 hours'`); err != nil {
			t.Fatal(err)
		}
		if ok, err := ledger.TryReserve(ctx, 10); !ok || err != nil {
			t.Errorf("expected reservation in fresh window, got %v %v", ok, err)
		}
	})
}

func TestSessionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewSessionRepo(testPool, NewTxManager(testPool))
	cleanup(t)

	s := &model.Session{ID: "s1", PhotoPath: "uploads/s1.jpg", PhotoContentType: "image/jpeg",
		Profile: model.Profile{DisplayName: "Sam", Goal: "run a marathon", CurrentWeightKg: 80, TargetWeightKg: 72}}
	if err := repo.Save(ctx, nil, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Read(ctx, "s1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Profile.Goal != "run a marathon" || got.PhotoContentType != "image/jpeg" {
		t.Errorf("unexpected session %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	err = repo.WriteArtifacts(ctx, "s1", []*model.Artifact{
		{ID: "a2", StepID: "m2", Ordinal: 2, ContentType: "image/png", Path: "p2", QualityStatus: model.QualityAccepted, Attempts: 1, CreatedAt: now},
		{ID: "a1", StepID: "m1", Ordinal: 1, ContentType: "image/png", Path: "p1", QualityStatus: model.QualityDegraded, QualityHint: "face_visible", Attempts: 3, CreatedAt: now},
		{ID: "a1b", StepID: "m1", Ordinal: 1, ContentType: "image/png", Path: "p1b", QualityStatus: model.QualityAccepted, Attempts: 1, CreatedAt: now.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	arts, err := repo.ListArtifacts(ctx, "s1")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(arts) != 2 || arts[0].ID != "a1b" || arts[1].ID != "a2" {
		t.Errorf("expected latest per step ordered by ordinal, got %+v", arts)
	}

	if _, err := repo.Read(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
