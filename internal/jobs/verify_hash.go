package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/db/repositories"
	"github.com/proveniq/properties-backend/internal/storage"
	"github.com/proveniq/properties-backend/pkg/checksum"
)

type verifyHashPayload struct {
	EvidenceID uuid.UUID `json:"evidence_id"`
}

// HashVerifier handles verify_hash jobs: it downloads the evidence object,
// recomputes its SHA-256, and fills in the verified hash exactly once. A
// mismatch against the client-claimed hash is not a job failure; it is
// recorded in the audit trail as an integrity discrepancy for a human to
// resolve, since failing the job would leave it permanently stuck.
type HashVerifier struct {
	db       *sqlx.DB
	evidence *repositories.EvidenceRepository
	audit    *repositories.AuditRepository
	store    storage.Provider
	logger   *slog.Logger
}

// NewHashVerifier creates a verify_hash job handler.
func NewHashVerifier(db *sqlx.DB, store storage.Provider, logger *slog.Logger) *HashVerifier {
	return &HashVerifier{
		db:       db,
		evidence: repositories.NewEvidenceRepository(db),
		audit:    repositories.NewAuditRepository(db),
		store:    store,
		logger:   logger,
	}
}

// Handle implements the Handler signature for verify_hash jobs.
func (h *HashVerifier) Handle(ctx context.Context, job *models.OutboxJob) error {
	var payload verifyHashPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrPermanent, err)
	}

	ev, err := h.evidence.GetByID(ctx, payload.EvidenceID)
	if err != nil {
		return fmt.Errorf("loading evidence: %w", err)
	}
	if ev == nil {
		return fmt.Errorf("%w: evidence %s no longer exists", ErrPermanent, payload.EvidenceID)
	}
	if ev.FileSHA256Verified != nil {
		// Previous attempt already verified; re-running is a no-op.
		return nil
	}

	reader, err := h.store.Download(ctx, ev.ObjectPath)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", ev.ObjectPath, err)
	}
	defer reader.Close()

	actual, err := checksum.CalculateSHA256(reader)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", ev.ObjectPath, err)
	}

	if _, err := h.evidence.SetVerifiedHash(ctx, ev.ID, actual); err != nil {
		return fmt.Errorf("storing verified hash: %w", err)
	}

	if ev.FileSHA256Claimed != nil && *ev.FileSHA256Claimed != actual {
		h.logger.Warn("evidence hash mismatch",
			"evidence_id", ev.ID, "claimed", *ev.FileSHA256Claimed, "verified", actual)

		resourceType := "evidence"
		entry := &models.AuditEntry{
			Action:       models.AuditActionIntegrityDiscrepancy,
			ResourceType: &resourceType,
			ResourceID:   &ev.ID,
			Details: map[string]interface{}{
				"object_path":          ev.ObjectPath,
				"file_sha256_claimed":  *ev.FileSHA256Claimed,
				"file_sha256_verified": actual,
			},
		}
		if err := h.audit.Record(ctx, h.db, entry); err != nil {
			return fmt.Errorf("recording integrity discrepancy: %w", err)
		}
	}
	return nil
}
