//go:build !integration

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memClient is a minimal in-process RedisClient.
type memClient struct {
	mu      sync.Mutex
	vals    map[string]string
	expires map[string]time.Duration
	getErr  error
}

func newMemClient() *memClient {
	return &memClient{vals: map[string]string{}, expires: map[string]time.Duration{}}
}

func (m *memClient) Ping(context.Context) error { return nil }
func (m *memClient) Close() error               { return nil }

func (m *memClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case string:
		m.vals[key] = v
	case []byte:
		m.vals[key] = string(v)
	}
	m.expires[key] = exp
	return nil
}

func (m *memClient) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.vals[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memClient) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.vals[key] {
		n = n*10 + int64(c-'0')
	}
	n++
	m.vals[key] = itoa(n)
	return n, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (m *memClient) Expire(_ context.Context, key string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = exp
	return nil
}

func (m *memClient) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.vals, k)
	}
	return nil
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()
	rl := NewRateLimiter(cli)
	key := SubmitKey("s1")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i+1)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, cli.expires[key])
	assert.Equal(t, "rate_limit:submit:s1", key)
}

func TestFlagSource(t *testing.T) {
	ctx := context.Background()
	cli := newMemClient()

	on := NewFlagSource(cli, "generation:enabled", true)
	enabled, err := on.GenerationEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled, "missing key falls back to the default")

	require.NoError(t, on.SetGenerationEnabled(ctx, false))
	enabled, err = on.GenerationEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Equal(t, time.Duration(0), cli.expires["generation:enabled"])

	require.NoError(t, cli.Set(ctx, "generation:enabled", "TRUE", 0))
	enabled, err = on.GenerationEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, cli.Set(ctx, "generation:enabled", "maybe", 0))
	_, err = on.GenerationEnabled(ctx)
	assert.Error(t, err)

	cli.getErr = errors.New("connection refused")
	_, err = on.GenerationEnabled(ctx)
	assert.Error(t, err)
}
