package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-transform-service/internal/infra/logging"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeFlag struct {
	mu      sync.Mutex
	enabled bool
	err     error
	reads   int
}

func (f *fakeFlag) GenerationEnabled(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.enabled, f.err
}

func (f *fakeFlag) set(enabled bool, err error) {
	f.mu.Lock()
	f.enabled, f.err = enabled, err
	f.mu.Unlock()
}

func TestKillSwitchCachesWithinTTL(t *testing.T) {
	clock := newFakeClock()
	src := &fakeFlag{enabled: true}
	ks := NewKillSwitch(src, 15*time.Second, clock.Now, logging.Nop())
	ctx := context.Background()

	assert.True(t, ks.Enabled(ctx))
	src.set(false, nil)
	clock.Advance(10 * time.Second)
	assert.True(t, ks.Enabled(ctx), "cached value should be served inside the TTL")
	assert.Equal(t, 1, src.reads)

	clock.Advance(5 * time.Second)
	assert.False(t, ks.Enabled(ctx), "toggle must take effect once the TTL elapses")
	assert.Equal(t, 2, src.reads)
}

func TestKillSwitchFailsSafe(t *testing.T) {
	clock := newFakeClock()
	src := &fakeFlag{enabled: true, err: errors.New("redis: connection refused")}
	ks := NewKillSwitch(src, time.Second, clock.Now, logging.Nop())

	assert.False(t, ks.Enabled(context.Background()))
}

func TestKillSwitchInvalidate(t *testing.T) {
	clock := newFakeClock()
	src := &fakeFlag{enabled: true}
	ks := NewKillSwitch(src, time.Hour, clock.Now, logging.Nop())
	ctx := context.Background()

	assert.True(t, ks.Enabled(ctx))
	src.set(false, nil)
	ks.Invalidate()
	assert.False(t, ks.Enabled(ctx))
}

func TestStaticFlag(t *testing.T) {
	on, err := StaticFlag(true).GenerationEnabled(context.Background())
	assert.NoError(t, err)
	assert.True(t, on)
}

type blockingFlag struct {
	started chan struct{}
	release chan struct{}
	reads   atomic.Int32
}

func (f *blockingFlag) GenerationEnabled(context.Context) (bool, error) {
	f.reads.Add(1)
	select {
	case f.started <- struct{}{}:
	default:
	}
	<-f.release
	return true, nil
}

func TestKillSwitchSlowSourceDoesNotSerializeCallers(t *testing.T) {
	clock := newFakeClock()
	src := &blockingFlag{started: make(chan struct{}, 1), release: make(chan struct{})}
	ks := NewKillSwitch(src, 15*time.Second, clock.Now, logging.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 6)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = ks.Enabled(ctx)
		}()
	}
	<-src.started

	invalidated := make(chan struct{})
	go func() {
		ks.Invalidate()
		close(invalidated)
	}()
	select {
	case <-invalidated:
	case <-time.After(time.Second):
		t.Fatal("Invalidate blocked behind an in-flight source read")
	}

	close(src.release)
	wg.Wait()
	for _, r := range results {
		assert.True(t, r)
	}
	assert.LessOrEqual(t, src.reads.Load(), int32(2))
}
