// Package inspections implements the HTTP handlers for the inspection
// lifecycle: draft CRUD, checklist items, evidence presign/confirm, the
// submit/sign/attest transitions, certificate retrieval, and the move-in vs
// move-out diff report. All authorization beyond the coarse middleware gate
// lives in the service layer; handlers only translate HTTP to service calls
// and service errors back to statuses.
package inspections

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/inspection"
)

// Handlers handles inspection endpoints
type Handlers struct {
	svc *inspection.Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc *inspection.Service) *Handlers {
	return &Handlers{svc: svc}
}

// @Summary      Create inspection
// @Description  Create a draft inspection scoped to exactly one lease or booking. Requires inspections:write scope.
// @Tags         Inspections
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  models.Inspection
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      403  {object}  map[string]interface{}  "Actor not authorized for the parent"
// @Router       /api/v1/inspections [post]
// Create creates a draft inspection
// POST /api/v1/inspections
func (h *Handlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}

		var req inspection.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ins, err := h.svc.Create(c.Request.Context(), actor, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ins)
	}
}

// @Summary      Get inspection
// @Description  Get an inspection with its items and evidence. Org-side callers do not see evidence on another user's draft until it is submitted.
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  inspection.Detail
// @Failure      404  {object}  map[string]interface{}  "Not found or not visible"
// @Router       /api/v1/inspections/{id} [get]
// Get returns an inspection aggregate
// GET /api/v1/inspections/:id
func (h *Handlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		detail, err := h.svc.Get(c.Request.Context(), actor, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// @Summary      List inspections
// @Description  List inspections for one lease or one booking, newest first. Exactly one of lease_id or booking_id must be supplied.
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        lease_id    query  string  false  "Lease UUID"
// @Param        booking_id  query  string  false  "Booking UUID"
// @Success      200  {object}  map[string]interface{}  "inspections: []models.Inspection"
// @Failure      400  {object}  map[string]interface{}  "Neither or both scope params supplied"
// @Router       /api/v1/inspections [get]
// List lists a parent's inspections
// GET /api/v1/inspections?lease_id=... or ?booking_id=...
func (h *Handlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}

		leaseParam := c.Query("lease_id")
		bookingParam := c.Query("booking_id")
		if (leaseParam == "") == (bookingParam == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of lease_id or booking_id is required"})
			return
		}

		if leaseParam != "" {
			leaseID, err := uuid.Parse(leaseParam)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lease_id"})
				return
			}
			list, err := h.svc.ListByLease(c.Request.Context(), actor, leaseID)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"inspections": list})
			return
		}

		bookingID, err := uuid.Parse(bookingParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
			return
		}
		list, err := h.svc.ListByBooking(c.Request.Context(), actor, bookingID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"inspections": list})
	}
}

// @Summary      Upsert checklist item
// @Description  Create or update a checklist item identified by (room_key, item_key, ordinal). Draft inspections only.
// @Tags         Inspections
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  models.InspectionItem
// @Failure      409  {object}  map[string]interface{}  "Inspection is locked"
// @Router       /api/v1/inspections/{id}/items [post]
// UpsertItem creates or updates a checklist item
// POST /api/v1/inspections/:id/items
func (h *Handlers) UpsertItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req inspection.ItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		item, err := h.svc.UpsertItem(c.Request.Context(), actor, id, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// @Summary      List checklist items
// @Description  List an inspection's checklist items in canonical order (room_key, item_key, ordinal).
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  map[string]interface{}  "items: []models.InspectionItem"
// @Router       /api/v1/inspections/{id}/items [get]
// ListItems lists an inspection's items
// GET /api/v1/inspections/:id/items
func (h *Handlers) ListItems() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		items, err := h.svc.ListItems(c.Request.Context(), actor, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// @Summary      Inspection diff
// @Description  Compare the lease's most recent signed move-in inspection against its most recent signed move-out inspection.
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        lease_id  path  string  true  "Lease UUID"
// @Success      200  {object}  inspection.DiffReport
// @Failure      409  {object}  map[string]interface{}  "Lease does not have both signed inspections yet"
// @Router       /api/v1/leases/{lease_id}/inspection-diff [get]
// Diff returns the move-in vs move-out condition report
// GET /api/v1/leases/:lease_id/inspection-diff
func (h *Handlers) Diff() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		leaseID, ok := pathID(c, "lease_id")
		if !ok {
			return
		}

		report, err := h.svc.Diff(c.Request.Context(), actor, leaseID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
