package usecase

import (
	"context"
	"sync"
	"time"

	"ai-transform-service/internal/domain/ports/adapter"
	"ai-transform-service/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// KillSwitch caches the externally sourced generation flag for a short TTL.
// An unreachable source reads as disabled. Concurrent misses share one fetch.
type KillSwitch struct {
	source adapter.FlagSource
	ttl    time.Duration
	now    func() time.Time
	log    *zerolog.Logger
	group  singleflight.Group

	mu        sync.Mutex
	enabled   bool
	fetchedAt time.Time
	valid     bool
}

func NewKillSwitch(source adapter.FlagSource, ttl time.Duration, now func() time.Time, logger *zerolog.Logger) *KillSwitch {
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "KillSwitch").Logger()
	return &KillSwitch{source: source, ttl: ttl, now: now, log: &l}
}

// Enabled reports whether paid generation is currently allowed.
func (k *KillSwitch) Enabled(ctx context.Context) bool {
	k.mu.Lock()
	if k.valid && k.now().Sub(k.fetchedAt) < k.ttl {
		enabled := k.enabled
		k.mu.Unlock()
		metrics.IncCacheRequest("kill_switch", "hit")
		return enabled
	}
	k.mu.Unlock()
	metrics.IncCacheRequest("kill_switch", "miss")

	v, _, _ := k.group.Do("flag", func() (any, error) {
		return k.refresh(ctx), nil
	})
	return v.(bool)
}

// refresh reads the source without holding mu.
func (k *KillSwitch) refresh(ctx context.Context) bool {
	fetchedAt := k.now()
	enabled, err := k.source.GenerationEnabled(ctx)
	if err != nil {
		k.log.Error().Err(err).Msg("kill switch source unreachable; denying generation")
		enabled = false
	}

	k.mu.Lock()
	changed := enabled != k.enabled || !k.valid
	k.enabled, k.fetchedAt, k.valid = enabled, fetchedAt, true
	k.mu.Unlock()

	if changed {
		k.log.Info().Bool("enabled", enabled).Msg("generation flag changed")
	}
	metrics.SetGenerationEnabled(enabled)
	return enabled
}

// Invalidate drops the cached value so the next read hits the source.
func (k *KillSwitch) Invalidate() {
	k.mu.Lock()
	k.valid = false
	k.mu.Unlock()
}

// StaticFlag is a FlagSource backed by configuration.
type StaticFlag bool

func (s StaticFlag) GenerationEnabled(context.Context) (bool, error) { return bool(s), nil }
