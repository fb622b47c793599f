// Package storage defines the Provider interface and common types for all
// evidence storage providers.
//
// New providers are added by implementing the Provider interface and registering
// with the factory via an init() function in the provider's own package:
//
//	func init() {
//	    factory.Register("myprovider", func(cfg *config.Config) (Provider, error) {
//	        return NewMyProvider(cfg)
//	    })
//	}
//
// The main package imports each provider with a blank import to trigger init().
// This means adding a new provider requires no changes to the factory or main
// package — only a blank import in cmd/server/main.go.
//
// Evidence bytes never pass through the API server on the upload path: clients
// PUT directly against presigned URLs and then confirm. The server only talks
// to the provider for presigning, Stat at confirm time, and the few objects it
// writes itself (certificates).
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Storage-instance kinds. Each provider reports exactly one kind; the value
// recorded under it is the provider-native object version captured at confirm
// time and is treated as an opaque token everywhere else.
const (
	InstanceKindGCSGeneration = "gcs_generation"
	InstanceKindS3ETag        = "s3_etag"
	InstanceKindAzureETag     = "azure_etag"
	InstanceKindLocalSHA256   = "local_sha256"
)

// Provider defines the interface for all evidence storage providers.
type Provider interface {
	// PresignUpload returns a URL against which the client can PUT the object
	// directly. The URL is bound to the declared content type and, where the
	// provider supports it, to a maximum size.
	PresignUpload(ctx context.Context, path, contentType string, maxSize int64, ttl time.Duration) (*PresignedUpload, error)

	// PresignDownload returns a time-limited GET URL for an existing object.
	PresignDownload(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Stat returns object metadata including the provider-native instance
	// identifier. Returns (nil, nil) when the object does not exist.
	Stat(ctx context.Context, path string) (*ObjectInfo, error)

	// Upload writes an object via the server. Used for server-generated
	// artifacts such as certificates, never for client evidence.
	Upload(ctx context.Context, path string, reader io.Reader, contentType string) (*ObjectInfo, error)

	// Download retrieves an object and returns a reader.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// PresignedUpload describes a direct-upload grant handed back to the client.
type PresignedUpload struct {
	// URL is the presigned endpoint the client must PUT against.
	URL string `json:"url"`

	// Method is the HTTP method the grant is valid for (always PUT).
	Method string `json:"method"`

	// Headers the client must send verbatim for the signature to validate.
	Headers map[string]string `json:"headers,omitempty"`

	// ExpiresAt is when the grant stops working.
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	// Path is the storage path of the object
	Path string

	// Size is the object size in bytes
	Size int64

	// InstanceKind identifies which provider-native version scheme InstanceID
	// uses (one of the InstanceKind constants above)
	InstanceKind string

	// InstanceID is the provider-native object version: GCS generation number,
	// S3/Azure ETag, or a content SHA-256 for local storage
	InstanceID string

	// LastModified is the timestamp when the object was last modified
	LastModified time.Time
}

// allowedMimeTypes is the closed set of content types accepted as evidence.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/heic":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"audio/mpeg":      true,
	"audio/mp4":       true,
	"application/pdf": true,
}

// AllowedMimeType reports whether the content type may be uploaded as evidence.
func AllowedMimeType(mimeType string) bool {
	return allowedMimeTypes[mimeType]
}

// ValidateUploadPolicy checks a declared upload against the evidence policy
// before any presigning happens.
func ValidateUploadPolicy(mimeType string, sizeBytes, maxSizeBytes int64) error {
	if !AllowedMimeType(mimeType) {
		return fmt.Errorf("mime type %q is not allowed for evidence", mimeType)
	}
	if sizeBytes <= 0 {
		return fmt.Errorf("declared size must be positive, got %d", sizeBytes)
	}
	if sizeBytes > maxSizeBytes {
		return fmt.Errorf("declared size %d exceeds the %d byte limit", sizeBytes, maxSizeBytes)
	}
	return nil
}
