package storage_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/proveniq/properties-backend/internal/config"
	"github.com/proveniq/properties-backend/internal/storage"
)

// ---------------------------------------------------------------------------
// Minimal mock Provider implementation for Register tests
// ---------------------------------------------------------------------------

type mockProvider struct{}

func (m *mockProvider) PresignUpload(_ context.Context, _, _ string, _ int64, _ time.Duration) (*storage.PresignedUpload, error) {
	return nil, nil
}
func (m *mockProvider) PresignDownload(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", nil
}
func (m *mockProvider) Stat(_ context.Context, _ string) (*storage.ObjectInfo, error) {
	return nil, nil
}
func (m *mockProvider) Upload(_ context.Context, _ string, _ io.Reader, _ string) (*storage.ObjectInfo, error) {
	return nil, nil
}
func (m *mockProvider) Download(_ context.Context, _ string) (io.ReadCloser, error) { return nil, nil }
func (m *mockProvider) Delete(_ context.Context, _ string) error                    { return nil }

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("test-provider", func(_ *config.Config) (storage.Provider, error) {
		return &mockProvider{}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultProvider = "test-provider"

	p, err := storage.NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider() error: %v", err)
	}
	if p == nil {
		t.Fatal("NewProvider() returned nil")
	}
}

// ---------------------------------------------------------------------------
// NewProvider
// ---------------------------------------------------------------------------

func TestNewProvider_UnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultProvider = "completely-unknown-provider"

	_, err := storage.NewProvider(cfg)
	if err == nil {
		t.Error("NewProvider() = nil error, want error for unregistered provider")
	}
}

func TestNewProvider_EmptyProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultProvider = ""

	_, err := storage.NewProvider(cfg)
	if err == nil {
		t.Error("NewProvider() = nil error, want error for empty provider name")
	}
}

// ---------------------------------------------------------------------------
// Upload policy
// ---------------------------------------------------------------------------

func TestAllowedMimeType(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{"image/jpeg", true},
		{"image/png", true},
		{"image/webp", true},
		{"image/heic", true},
		{"video/mp4", true},
		{"video/quicktime", true},
		{"audio/mpeg", true},
		{"audio/mp4", true},
		{"application/pdf", true},
		{"image/gif", false},
		{"text/html", false},
		{"application/octet-stream", false},
		{"", false},
		{"IMAGE/JPEG", false},
	}

	for _, tt := range tests {
		if got := storage.AllowedMimeType(tt.mimeType); got != tt.want {
			t.Errorf("AllowedMimeType(%q) = %v, want %v", tt.mimeType, got, tt.want)
		}
	}
}

func TestValidateUploadPolicy(t *testing.T) {
	const maxSize = 50 * 1024 * 1024

	tests := []struct {
		name     string
		mimeType string
		size     int64
		wantErr  bool
	}{
		{"valid image", "image/jpeg", 1024, false},
		{"valid at limit", "application/pdf", maxSize, false},
		{"disallowed mime", "image/gif", 1024, true},
		{"zero size", "image/jpeg", 0, true},
		{"negative size", "image/jpeg", -1, true},
		{"over limit", "video/mp4", maxSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.ValidateUploadPolicy(tt.mimeType, tt.size, maxSize)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUploadPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
