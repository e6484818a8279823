//go:build !integration

package sched

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-transform-service/internal/infra/memory"
	"ai-transform-service/internal/infra/worker"
)

type fakeQueue struct {
	seen []string
	full bool
}

func (q *fakeQueue) Enqueue(sessionID string) (bool, error) {
	if q.full {
		return false, worker.ErrQueueFull
	}
	for _, s := range q.seen {
		if s == sessionID {
			return false, nil
		}
	}
	q.seen = append(q.seen, sessionID)
	return true, nil
}

func TestRecoveryWorker_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	jobs := memory.NewJobStore(func() time.Time { return now })

	// s1: never started, s2: lease lapsed mid-run, s3: live lease, s4: done
	for _, sid := range []string{"s1", "s2", "s3", "s4"} {
		_, err := jobs.GetOrCreate(ctx, sid)
		require.NoError(t, err)
	}
	_, err := jobs.AcquireLock(ctx, "s2", time.Minute)
	require.NoError(t, err)
	jobs.Expire("s2")
	_, err = jobs.AcquireLock(ctx, "s3", time.Minute)
	require.NoError(t, err)
	tok4, err := jobs.AcquireLock(ctx, "s4", time.Minute)
	require.NoError(t, err)
	require.NoError(t, jobs.MarkCompleted(ctx, "s4", tok4))

	l := zerolog.Nop()
	q := &fakeQueue{}
	w := NewRecoveryWorker(time.Minute, 10, jobs, q, &l)

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"s1", "s2"}, q.seen)

	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already queued sessions are not counted twice")

	q.full = true
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
