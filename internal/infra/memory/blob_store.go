package memory

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/ports/adapter"
)

type blob struct {
	data        []byte
	contentType string
}

// BlobStore keeps payloads in memory. SignedURL returns an unsigned mem:// URL.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

var _ adapter.BlobStore = (*BlobStore)(nil)

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

func (s *BlobStore) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = blob{data: append([]byte(nil), data...), contentType: contentType}
	return path, nil
}

func (s *BlobStore) Get(_ context.Context, path string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[strings.TrimPrefix(path, "/")]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return append([]byte(nil), b.data...), b.contentType, nil
}

func (s *BlobStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[strings.TrimPrefix(path, "/")]
	s.mu.RUnlock()
	if !ok {
		return "", domain.ErrNotFound
	}
	u := url.URL{Scheme: "mem", Path: "/" + strings.TrimPrefix(path, "/")}
	return u.String(), nil
}

// Len reports how many blobs are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
