// Package gcs implements the Google Cloud Storage provider for inspection
// evidence. Uploads and downloads use time-limited V4 signed URLs generated via
// the GCS signing API; the service never proxies evidence content. The object
// generation number is captured at confirm time as the storage instance
// identifier. Supports Application Default Credentials, service account JSON
// keys, and Workload Identity Federation for keyless authentication in GKE and
// GitHub Actions environments.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/proveniq/properties-backend/internal/config"
	appstorage "github.com/proveniq/properties-backend/internal/storage"
)

func init() {
	// Register GCS storage provider
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Provider, error) {
		return New(&cfg.Storage.GCS)
	})
}

// GCSProvider implements the Provider interface for Google Cloud Storage
type GCSProvider struct {
	client *storage.Client
	bucket string
}

// New creates a new Google Cloud Storage provider
//
// Authentication methods:
//   - "default" or empty: Uses Application Default Credentials (ADC)
//     This automatically supports:
//   - GOOGLE_APPLICATION_CREDENTIALS environment variable
//   - GCE/GKE metadata service
//   - Cloud Run/Cloud Functions service account
//   - gcloud auth application-default login
//   - "service_account": Uses a service account key file or JSON
//   - "workload_identity": Uses Workload Identity Federation (GKE, GitHub Actions, etc.)
func New(cfg *appconfig.GCSStorageConfig) (*GCSProvider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	ctx := context.Background()
	var opts []option.ClientOption

	// Set custom endpoint for GCS emulators or compatible services
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		if cfg.CredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		} else if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		} else {
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}

	case "workload_identity", "default":
		// Application Default Credentials. The client resolves the credential
		// source itself (env var, metadata service, gcloud login).

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSProvider{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Close closes the GCS client
func (s *GCSProvider) Close() error {
	return s.client.Close()
}

// PresignUpload generates a V4 signed PUT URL bound to the declared content
// type and a content-length range, so a client cannot swap the payload type or
// exceed the declared size after presigning.
//
// Note: signing requires the service account to have the
// iam.serviceAccountTokenCreator role or for ADC to have signBlob permissions.
func (s *GCSProvider) PresignUpload(ctx context.Context, path, contentType string, maxSize int64, ttl time.Duration) (*appstorage.PresignedUpload, error) {
	expires := time.Now().Add(ttl)
	lengthRange := fmt.Sprintf("x-goog-content-length-range:0,%d", maxSize)

	opts := &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		Expires:     expires,
		ContentType: contentType,
		Headers:     []string{lengthRange},
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signed upload URL: %w", err)
	}

	return &appstorage.PresignedUpload{
		URL:    url,
		Method: "PUT",
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": fmt.Sprintf("0,%d", maxSize),
		},
		ExpiresAt: expires,
	}, nil
}

// PresignDownload generates a V4 signed GET URL for an existing object
func (s *GCSProvider) PresignDownload(ctx context.Context, path string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(path, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return url, nil
}

// Stat returns object metadata with the GCS generation number as the instance
// identifier. Returns (nil, nil) when the object does not exist.
func (s *GCSProvider) Stat(ctx context.Context, path string) (*appstorage.ObjectInfo, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(path).Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	return &appstorage.ObjectInfo{
		Path:         path,
		Size:         attrs.Size,
		InstanceKind: appstorage.InstanceKindGCSGeneration,
		InstanceID:   strconv.FormatInt(attrs.Generation, 10),
		LastModified: attrs.Updated,
	}, nil
}

// Upload writes a server-generated object to GCS
func (s *GCSProvider) Upload(ctx context.Context, path string, reader io.Reader, contentType string) (*appstorage.ObjectInfo, error) {
	obj := s.client.Bucket(s.bucket).Object(path)

	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType

	written, err := io.Copy(writer, reader)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	attrs := writer.Attrs()

	return &appstorage.ObjectInfo{
		Path:         path,
		Size:         written,
		InstanceKind: appstorage.InstanceKindGCSGeneration,
		InstanceID:   strconv.FormatInt(attrs.Generation, 10),
		LastModified: attrs.Updated,
	}, nil
}

// Download retrieves an object from GCS
func (s *GCSProvider) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}

	return reader, nil
}

// Delete removes an object from GCS
func (s *GCSProvider) Delete(ctx context.Context, path string) error {
	if err := s.client.Bucket(s.bucket).Object(path).Delete(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}

	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *GCSProvider) EnsureBucket(ctx context.Context, projectID string) error {
	bucket := s.client.Bucket(s.bucket)

	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}

	if err != storage.ErrBucketNotExist {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if projectID == "" {
		return fmt.Errorf("project_id is required to create a bucket")
	}

	if err := bucket.Create(ctx, projectID, nil); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
