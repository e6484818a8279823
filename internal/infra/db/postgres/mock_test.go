//go:build !integration

package postgres

import (
	"context"
	"time"

	"ai-transform-service/internal/domain/model"
	red "ai-transform-service/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerSessionRepo mocks the database repository that the session decorator wraps.
type mockInnerSessionRepo struct {
	ReadFunc           func(ctx context.Context, sessionID string) (*model.Session, error)
	WriteArtifactsFunc func(ctx context.Context, sessionID string, artifacts []*model.Artifact) error
	ListArtifactsFunc  func(ctx context.Context, sessionID string) ([]*model.Artifact, error)
}

func (m *mockInnerSessionRepo) Read(ctx context.Context, sessionID string) (*model.Session, error) {
	return m.ReadFunc(ctx, sessionID)
}
func (m *mockInnerSessionRepo) WriteArtifacts(ctx context.Context, sessionID string, artifacts []*model.Artifact) error {
	return m.WriteArtifactsFunc(ctx, sessionID, artifacts)
}
func (m *mockInnerSessionRepo) ListArtifacts(ctx context.Context, sessionID string) ([]*model.Artifact, error) {
	return m.ListArtifactsFunc(ctx, sessionID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
