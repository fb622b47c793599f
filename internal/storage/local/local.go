// Package local implements the local filesystem storage provider for inspection
// evidence. This provider is intended for development and single-node deployments
// only — it does not support horizontal scaling (multiple service instances would
// need access to the same filesystem, e.g., via NFS) and its "presigned" URLs are
// plain routes served by the API itself. The content SHA-256 stands in for a
// provider-native object version as the storage instance identifier. For
// production, use a cloud storage provider.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/proveniq/properties-backend/internal/config"
	"github.com/proveniq/properties-backend/internal/storage"
	"github.com/proveniq/properties-backend/pkg/checksum"
)

func init() {
	// Register local storage provider
	storage.Register("local", func(cfg *config.Config) (storage.Provider, error) {
		return New(&cfg.Storage.Local, cfg.Server.BaseURL)
	})
}

// LocalProvider implements the Provider interface for local filesystem storage
type LocalProvider struct {
	basePath string
	baseURL  string
}

// New creates a new local filesystem storage provider
func New(cfg *config.LocalStorageConfig, serverBaseURL string) (*LocalProvider, error) {
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalProvider{
		basePath: cfg.BasePath,
		baseURL:  serverBaseURL,
	}, nil
}

func (s *LocalProvider) fullPath(path string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(path))
}

// PresignUpload returns a route on the API itself that accepts a direct PUT.
// There is no signature; local storage is a development-only provider.
func (s *LocalProvider) PresignUpload(ctx context.Context, path, contentType string, maxSize int64, ttl time.Duration) (*storage.PresignedUpload, error) {
	expires := time.Now().Add(ttl)

	return &storage.PresignedUpload{
		URL:    fmt.Sprintf("%s/api/v1/files/%s", s.baseURL, path),
		Method: "PUT",
		Headers: map[string]string{
			"Content-Type": contentType,
		},
		ExpiresAt: expires,
	}, nil
}

// PresignDownload returns a route on the API itself that serves the file
func (s *LocalProvider) PresignDownload(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/api/v1/files/%s", s.baseURL, path), nil
}

// Stat returns file metadata with the content SHA-256 as the instance
// identifier. Returns (nil, nil) when the file does not exist.
func (s *LocalProvider) Stat(ctx context.Context, path string) (*storage.ObjectInfo, error) {
	fullPath := s.fullPath(path)

	stat, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	sum, err := checksum.CalculateSHA256(file)
	if err != nil {
		return nil, err
	}

	return &storage.ObjectInfo{
		Path:         path,
		Size:         stat.Size(),
		InstanceKind: storage.InstanceKindLocalSHA256,
		InstanceID:   sum,
		LastModified: stat.ModTime(),
	}, nil
}

// Upload stores a file in the local filesystem
func (s *LocalProvider) Upload(ctx context.Context, path string, reader io.Reader, contentType string) (*storage.ObjectInfo, error) {
	fullPath := s.fullPath(path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		// Clean up partial file
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}
	sum, err := checksum.CalculateSHA256(file)
	if err != nil {
		return nil, err
	}

	return &storage.ObjectInfo{
		Path:         path,
		Size:         written,
		InstanceKind: storage.InstanceKindLocalSHA256,
		InstanceID:   sum,
		LastModified: time.Now().UTC(),
	}, nil
}

// Download retrieves a file from the local filesystem
func (s *LocalProvider) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes a file from the local filesystem
func (s *LocalProvider) Delete(ctx context.Context, path string) error {
	fullPath := s.fullPath(path)

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// Remove now-empty parent directories (best effort)
	dir := filepath.Dir(fullPath)
	for dir != s.basePath {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}
