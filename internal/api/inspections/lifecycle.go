// lifecycle.go implements the submit, sign, and attest transition endpoints
// plus certificate retrieval.
package inspections

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Submit inspection
// @Description  Lock the inspection: compute the canonical content hash over the current items and evidence, freeze the payload, and flip the status to submitted. Enqueues certificate generation.
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  models.Inspection
// @Failure      409  {object}  map[string]interface{}  "Inspection is no longer in draft"
// @Router       /api/v1/inspections/{id}/submit [post]
// Submit locks the inspection content
// POST /api/v1/inspections/:id/submit
func (h *Handlers) Submit() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		ins, err := h.svc.Submit(c.Request.Context(), actor, id, requestMeta(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ins)
	}
}

// @Summary      Sign inspection
// @Description  Record the caller's role signature on a lease-scoped inspection. Each role signs at most once; the inspection flips to signed only once both the tenant and landlord signatures are present.
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  models.Inspection
// @Failure      409  {object}  map[string]interface{}  "Role already signed or inspection not signable"
// @Router       /api/v1/inspections/{id}/sign [post]
// Sign records one role's signature
// POST /api/v1/inspections/:id/sign
func (h *Handlers) Sign() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		ins, err := h.svc.Sign(c.Request.Context(), actor, id, requestMeta(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ins)
	}
}

// @Summary      Attest inspection
// @Description  Single-call host attestation for a booking-scoped inspection, flipping it directly to signed. Computes the canonical hash inline when submit was skipped.
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  models.Inspection
// @Failure      409  {object}  map[string]interface{}  "Inspection already signed"
// @Router       /api/v1/inspections/{id}/attest [post]
// Attest performs the booking attestation
// POST /api/v1/inspections/:id/attest
func (h *Handlers) Attest() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		ins, err := h.svc.Attest(c.Request.Context(), actor, id, requestMeta(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ins)
	}
}

// @Summary      Inspection certificate
// @Description  Redirect to a presigned download of the stored certificate artifact once the generation job has run; before that the document is synthesized on demand and returned inline.
// @Tags         Inspections
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  inspection.CertificateDocument  "Synthesized document (artifact not stored yet)"
// @Success      302  {string}  string  "Redirect to presigned artifact download"
// @Failure      409  {object}  map[string]interface{}  "Inspection has not been submitted"
// @Router       /api/v1/inspections/{id}/certificate [get]
// Certificate returns the inspection certificate
// GET /api/v1/inspections/:id/certificate
func (h *Handlers) Certificate() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		result, err := h.svc.Certificate(c.Request.Context(), actor, id)
		if err != nil {
			writeError(c, err)
			return
		}

		if result.RedirectURL != "" {
			c.Redirect(http.StatusFound, result.RedirectURL)
			return
		}
		c.Header("X-Checksum-SHA256", result.SHA256)
		c.Data(http.StatusOK, "application/json", result.Document)
	}
}
