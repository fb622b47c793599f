// Package files implements the direct file routes backing the local storage
// provider. The local provider's "presigned" URLs point at these routes, so
// they exist only when local storage is the active provider. Production
// providers (GCS, S3, Azure) presign against the cloud endpoint and never
// touch these handlers.
package files

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proveniq/properties-backend/internal/storage"
)

// Handlers serves and accepts objects on behalf of the local provider
type Handlers struct {
	store storage.Provider
}

// NewHandlers creates a new Handlers instance
func NewHandlers(store storage.Provider) *Handlers {
	return &Handlers{store: store}
}

// Serve streams a stored object to the client
// GET /api/v1/files/*filepath
func (h *Handlers) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("filepath"), "/")
		if path == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file path is required"})
			return
		}

		info, err := h.store.Stat(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stat file"})
			return
		}
		if info == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}

		reader, err := h.store.Download(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}
		defer reader.Close()

		// The local provider's instance identifier is the content SHA-256.
		if info.InstanceKind == storage.InstanceKindLocalSHA256 {
			c.Header("X-Checksum-SHA256", info.InstanceID)
		}
		c.DataFromReader(http.StatusOK, info.Size, "application/octet-stream", reader, nil)
	}
}

// Accept stores the request body at the addressed path. This is the PUT
// target of a local-provider upload grant.
// PUT /api/v1/files/*filepath
func (h *Handlers) Accept() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("filepath"), "/")
		if path == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file path is required"})
			return
		}

		contentType := c.ContentType()
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		info, err := h.store.Upload(c.Request.Context(), path, c.Request.Body, contentType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"path":       info.Path,
			"size_bytes": info.Size,
		})
	}
}
