package adapter

import (
	"context"
	"time"
)

// BlobStore persists binary payloads and hands out time-limited URLs.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, string, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
