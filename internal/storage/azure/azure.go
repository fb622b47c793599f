// Package azure implements the Azure Blob Storage provider for inspection
// evidence. Uploads and downloads use time-limited SAS (Shared Access Signature)
// URLs generated on demand rather than proxied through the service, keeping
// evidence bytes off the service's network path. The blob ETag captured at
// confirm time serves as the storage instance identifier.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/proveniq/properties-backend/internal/config"
	"github.com/proveniq/properties-backend/internal/storage"
)

func init() {
	// Register Azure storage provider
	storage.Register("azure", func(cfg *config.Config) (storage.Provider, error) {
		return New(&cfg.Storage.Azure)
	})
}

// AzureProvider implements the Provider interface for Azure Blob Storage
type AzureProvider struct {
	client        *azblob.Client
	credential    *azblob.SharedKeyCredential
	containerName string
	accountName   string
}

// New creates a new Azure Blob Storage provider
func New(cfg *config.AzureStorageConfig) (*AzureProvider, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureProvider{
		client:        client,
		credential:    credential,
		containerName: cfg.ContainerName,
		accountName:   cfg.AccountName,
	}, nil
}

// sasURL signs a SAS grant for one blob and returns the full URL.
func (s *AzureProvider) sasURL(path string, permissions sas.BlobPermissions, ttl time.Duration) (string, time.Time, error) {
	// Start slightly in the past to allow for clock skew
	startTime := time.Now().UTC().Add(-5 * time.Minute)
	expiryTime := time.Now().UTC().Add(ttl)

	sasQueryParams, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     startTime,
		ExpiryTime:    expiryTime,
		Permissions:   permissions.String(),
		ContainerName: s.containerName,
		BlobName:      path,
	}.SignWithSharedKey(s.credential)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate SAS token: %w", err)
	}

	blobURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s",
		s.accountName, s.containerName, url.PathEscape(path))

	return fmt.Sprintf("%s?%s", blobURL, sasQueryParams.Encode()), expiryTime, nil
}

// PresignUpload generates a SAS PUT URL for a block blob. Azure SAS cannot bind
// a maximum content length, so the declared size is enforced again at confirm
// time via Stat.
func (s *AzureProvider) PresignUpload(ctx context.Context, path, contentType string, maxSize int64, ttl time.Duration) (*storage.PresignedUpload, error) {
	url, expiresAt, err := s.sasURL(path, sas.BlobPermissions{Create: true, Write: true}, ttl)
	if err != nil {
		return nil, err
	}

	return &storage.PresignedUpload{
		URL:    url,
		Method: "PUT",
		Headers: map[string]string{
			"Content-Type":   contentType,
			"x-ms-blob-type": "BlockBlob",
		},
		ExpiresAt: expiresAt,
	}, nil
}

// PresignDownload generates a read-only SAS URL for an existing blob
func (s *AzureProvider) PresignDownload(ctx context.Context, path string, ttl time.Duration) (string, error) {
	url, _, err := s.sasURL(path, sas.BlobPermissions{Read: true}, ttl)
	return url, err
}

// Stat returns blob metadata with the ETag as the instance identifier.
// Returns (nil, nil) when the blob does not exist.
func (s *AzureProvider) Stat(ctx context.Context, path string) (*storage.ObjectInfo, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(path)

	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}

	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}

	var lastModified time.Time
	if props.LastModified != nil {
		lastModified = *props.LastModified
	}

	return &storage.ObjectInfo{
		Path:         path,
		Size:         size,
		InstanceKind: storage.InstanceKindAzureETag,
		InstanceID:   normalizeETag(props.ETag),
		LastModified: lastModified,
	}, nil
}

// Upload writes a server-generated blob to Azure Blob Storage
func (s *AzureProvider) Upload(ctx context.Context, path string, reader io.Reader, contentType string) (*storage.ObjectInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(path)

	resp, err := blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.ObjectInfo{
		Path:         path,
		Size:         int64(len(data)),
		InstanceKind: storage.InstanceKindAzureETag,
		InstanceID:   normalizeETag(resp.ETag),
		LastModified: time.Now().UTC(),
	}, nil
}

// Download retrieves a blob from Azure Blob Storage
func (s *AzureProvider) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(path)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}

	return resp.Body, nil
}

// Delete removes a blob from Azure Blob Storage
func (s *AzureProvider) Delete(ctx context.Context, path string) error {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(path)

	_, err := blobClient.Delete(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}

	return nil
}

// EnsureContainer creates the container if it doesn't exist
func (s *AzureProvider) EnsureContainer(ctx context.Context) error {
	containerClient := s.client.ServiceClient().NewContainerClient(s.containerName)

	_, err := containerClient.Create(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create container: %w", err)
	}

	return nil
}

// normalizeETag strips the quotes Azure wraps ETags in so stored instance
// identifiers compare byte-for-byte.
func normalizeETag(etag *azcore.ETag) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(string(*etag), `"`)
}
