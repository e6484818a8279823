package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"
	"ai-transform-service/internal/infra/metrics"
	red "ai-transform-service/internal/infra/redis"
)

var _ repository.SessionRepository = (*sessionRepoCacheDecorator)(nil)

// sessionRepoCacheDecorator caches session reads. Artifact listings are not
// cached: they change while a job runs.
type sessionRepoCacheDecorator struct {
	inner repository.SessionRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewSessionRepoCacheDecorator(inner repository.SessionRepository, cache red.RedisClient) repository.SessionRepository {
	return &sessionRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   10 * time.Minute,
	}
}

func sessionKey(id string) string { return fmt.Sprintf("session:%s", id) }

func (d *sessionRepoCacheDecorator) Read(ctx context.Context, sessionID string) (*model.Session, error) {
	key := sessionKey(sessionID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var s model.Session
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCacheRequest("session", "hit")
			return &s, nil
		}
	}

	metrics.IncCacheRequest("session", "miss")
	s, err := d.inner.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(s); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return s, nil
}

func (d *sessionRepoCacheDecorator) WriteArtifacts(ctx context.Context, sessionID string, artifacts []*model.Artifact) error {
	return d.inner.WriteArtifacts(ctx, sessionID, artifacts)
}

func (d *sessionRepoCacheDecorator) ListArtifacts(ctx context.Context, sessionID string) ([]*model.Artifact, error) {
	return d.inner.ListArtifacts(ctx, sessionID)
}

// Invalidate drops the cached copy of a session after it was rewritten.
func (d *sessionRepoCacheDecorator) Invalidate(ctx context.Context, sessionID string) error {
	return d.cache.Del(ctx, sessionKey(sessionID))
}
