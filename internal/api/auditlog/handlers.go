// Package auditlog implements read-only handlers over the append-only audit
// trail. Entries are written exclusively by the service layer inside lifecycle
// transactions; this package only queries. Listing is always scoped to the
// caller's organisation.
package auditlog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/repositories"
	"github.com/proveniq/properties-backend/internal/middleware"
)

// Handlers handles audit trail endpoints
type Handlers struct {
	repo *repositories.AuditRepository
}

// NewHandlers creates a new Handlers instance
func NewHandlers(db *sqlx.DB) *Handlers {
	return &Handlers{repo: repositories.NewAuditRepository(db)}
}

// @Summary      List audit entries
// @Description  Get a paginated list of the caller's organisation's audit entries, newest first. Requires an org-member actor with audit:read scope.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        action         query  string  false  "Filter by action"
// @Param        resource_type  query  string  false  "Filter by resource type"
// @Param        resource_id    query  string  false  "Filter by resource UUID"
// @Param        user_id        query  string  false  "Filter by acting user UUID"
// @Param        start_date     query  string  false  "RFC3339 lower bound on created_at"
// @Param        end_date       query  string  false  "RFC3339 upper bound on created_at"
// @Param        page           query  int     false  "Page number (default 1)"
// @Param        per_page       query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "entries: []models.AuditEntry, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter value"
// @Router       /api/v1/audit [get]
// List lists the caller org's audit entries
// GET /api/v1/audit
func (h *Handlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok || actor.OrgID == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "organisation membership required"})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}
		offset := (page - 1) * perPage

		// The org filter is not caller-controlled: listing never crosses
		// organisation boundaries.
		filters := repositories.AuditFilters{OrgID: actor.OrgID}

		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("resource_type"); v != "" {
			filters.ResourceType = &v
		}
		if v := c.Query("resource_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource_id"})
				return
			}
			filters.ResourceID = &id
		}
		if v := c.Query("user_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
				return
			}
			filters.UserID = &id
		}
		if v := c.Query("start_date"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, expected RFC3339"})
				return
			}
			filters.StartDate = &t
		}
		if v := c.Query("end_date"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, expected RFC3339"})
				return
			}
			filters.EndDate = &t
		}

		entries, total, err := h.repo.List(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit entries"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get audit entry
// @Description  Get a single audit entry by ID. Entries belonging to another organisation are reported as not found.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Audit entry UUID"
// @Success      200  {object}  models.AuditEntry
// @Failure      404  {object}  map[string]interface{}  "Not found"
// @Router       /api/v1/audit/{id} [get]
// Get returns a single audit entry
// GET /api/v1/audit/:id
func (h *Handlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok || actor.OrgID == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "organisation membership required"})
			return
		}

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		entry, err := h.repo.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit entry"})
			return
		}
		if entry == nil || entry.OrgID == nil || *entry.OrgID != *actor.OrgID {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}
