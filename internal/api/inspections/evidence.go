// evidence.go implements the presigned-upload evidence gateway endpoints.
// Evidence bytes never pass through these handlers: presign hands the client
// a direct-upload grant, confirm records the completed upload after checking
// it actually exists at the provider.
package inspections

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proveniq/properties-backend/internal/inspection"
)

// @Summary      Presign evidence upload
// @Description  Validate upload policy and issue a presigned PUT URL for a new evidence object under the target checklist item. Draft inspections only.
// @Tags         Evidence
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      200  {object}  inspection.PresignResult
// @Failure      400  {object}  map[string]interface{}  "MIME type or size rejected by policy"
// @Failure      409  {object}  map[string]interface{}  "Inspection is locked"
// @Failure      502  {object}  map[string]interface{}  "Storage provider unavailable"
// @Router       /api/v1/inspections/{id}/evidence/presign [post]
// PresignEvidence issues a direct-upload grant
// POST /api/v1/inspections/:id/evidence/presign
func (h *Handlers) PresignEvidence() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req inspection.PresignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := h.svc.PresignEvidence(c.Request.Context(), actor, id, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Confirm evidence upload
// @Description  Record a completed upload as evidence. Idempotent on (item, idempotency_key): a replay returns the original row and ignores the new body. The object must exist at the provider before confirm succeeds.
// @Tags         Evidence
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Inspection UUID"
// @Success      201  {object}  models.Evidence
// @Failure      400  {object}  map[string]interface{}  "Upload did not complete or request invalid"
// @Failure      409  {object}  map[string]interface{}  "Inspection is locked"
// @Failure      502  {object}  map[string]interface{}  "Storage provider unavailable"
// @Router       /api/v1/inspections/{id}/evidence/confirm [post]
// ConfirmEvidence records a completed upload
// POST /api/v1/inspections/:id/evidence/confirm
func (h *Handlers) ConfirmEvidence() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var req inspection.ConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ev, err := h.svc.ConfirmEvidence(c.Request.Context(), actor, id, req, requestMeta(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ev)
	}
}
