package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/ports/adapter"
)

var _ adapter.BlobStore = (*FSStore)(nil)

const metaSuffix = ".ctype"

// FSStore keeps blobs under a root directory. The content type lives in a
// sidecar file next to each blob. Download URLs point at the HTTP surface's
// /blobs route and carry a signed token.
type FSStore struct {
	root    string
	baseURL string
	signer  *Signer
}

func NewFSStore(root, publicBaseURL string, signer *Signer) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root, baseURL: strings.TrimRight(publicBaseURL, "/"), signer: signer}, nil
}

// resolve maps a logical path to a file under root, rejecting traversal.
func (s *FSStore) resolve(path string) (string, string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + path))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || strings.HasSuffix(clean, metaSuffix) {
		return "", "", fmt.Errorf("%w: bad blob path %q", domain.ErrInvalidArgument, path)
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FSStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	// write to a temp file then rename, so readers never see a partial blob
	tmp, err := os.CreateTemp(filepath.Dir(full), ".blob-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.WriteFile(full+metaSuffix, []byte(contentType), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return clean, nil
}

func (s *FSStore) Get(ctx context.Context, path string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	_, full, err := s.resolve(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	ct, err := os.ReadFile(full + metaSuffix)
	if err != nil {
		ct = []byte("application/octet-stream")
	}
	return data, string(ct), nil
}

func (s *FSStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	clean, full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return "", domain.ErrNotFound
	}
	tok, err := s.signer.Mint(clean, ttl)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/blobs/" + clean + "?token=" + url.QueryEscape(tok), nil
}

// Verify checks a download token for path.
func (s *FSStore) Verify(token, path string) error {
	clean, _, err := s.resolve(path)
	if err != nil {
		return ErrInvalidToken
	}
	return s.signer.Verify(token, clean)
}
