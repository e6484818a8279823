package redis

import (
	"context"
	"fmt"
	"strings"

	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.FlagSource = (*FlagSource)(nil)

// FlagSource reads the generation kill switch from a single key.
// "1"/"true" enables, "0"/"false" disables, a missing key yields the default.
type FlagSource struct {
	client         RedisClient
	key            string
	defaultEnabled bool
}

func NewFlagSource(client RedisClient, key string, defaultEnabled bool) *FlagSource {
	return &FlagSource{client: client, key: key, defaultEnabled: defaultEnabled}
}

func (f *FlagSource) GenerationEnabled(ctx context.Context) (bool, error) {
	v, err := f.client.Get(ctx, f.key)
	if IsNil(err) {
		return f.defaultEnabled, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on":
		return true, nil
	case "0", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("kill switch %s: unrecognized value %q", f.key, v)
}

// SetGenerationEnabled writes the switch without expiry.
func (f *FlagSource) SetGenerationEnabled(ctx context.Context, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return f.client.Set(ctx, f.key, v, 0)
}

// Key is the Redis key the switch lives under.
func (f *FlagSource) Key() string { return f.key }
