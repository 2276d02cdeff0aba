// Package local implements the local filesystem avatar storage backend. It is
// intended for development and single-node deployments; multiple replicas
// would need a shared filesystem. Use the s3 backend for production.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/storage"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Store, error) {
		return New(&cfg.Storage.Local, cfg.Server.PublicURL)
	})
}

// LocalStore implements the Store interface on the local filesystem
type LocalStore struct {
	basePath  string
	publicURL string
}

// New creates a local filesystem avatar store rooted at cfg.BasePath
func New(cfg *config.LocalStorageConfig, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStore{
		basePath:  cfg.BasePath,
		publicURL: publicURL,
	}, nil
}

// Put stores an object on the local filesystem. The content type is not
// persisted; the serving endpoint infers it from the file extension.
func (s *LocalStore) Put(ctx context.Context, path string, reader io.Reader, size int64, contentType string) (*storage.PutResult, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), reader)
	if err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &storage.PutResult{
		Path:     path,
		Size:     written,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open retrieves an object from the local filesystem
func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes an object from the local filesystem
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// Best effort cleanup of empty parent directories
	dir := filepath.Dir(fullPath)
	for dir != s.basePath {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

// URL returns a URL served by the API's file endpoint. The TTL is ignored;
// local files are served directly without signing.
func (s *LocalStore) URL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("file not found: %s", path)
	}

	return fmt.Sprintf("%s/api/v1/files/%s", s.publicURL, path), nil
}

// Exists checks whether an object is present at the path
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	_, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}
