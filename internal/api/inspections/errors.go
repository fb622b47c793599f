// errors.go maps the service error taxonomy onto HTTP statuses and holds the
// small helpers every handler shares.
package inspections

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/inspection"
	"github.com/proveniq/properties-backend/internal/middleware"
)

// writeError translates a service error into an HTTP response. Unknown errors
// become an opaque 500; the details stay in the server log, not the body.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inspection.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, inspection.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case inspection.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case inspection.IsWrongState(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, inspection.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage provider unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// requireActor pulls the authenticated actor out of the request context. The
// auth middleware always sets it; a miss means the route was wired without
// the middleware, which is a server bug, not a client error.
func requireActor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return auth.Actor{}, false
	}
	return actor, true
}

// pathID parses a UUID path parameter, responding 400 on garbage.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// requestMeta captures client metadata for audit entries.
func requestMeta(c *gin.Context) inspection.RequestMeta {
	meta := inspection.RequestMeta{}
	if ip := c.ClientIP(); ip != "" {
		meta.IPAddress = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}
