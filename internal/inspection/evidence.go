// Package inspection - evidence.go implements the two-phase evidence upload
// protocol: presign hands the client a time-limited direct-to-provider upload
// URL; confirm verifies the object actually landed, records the evidence row,
// and enqueues asynchronous hash verification. Presigning alone writes
// nothing; an abandoned upload slot simply expires.
package inspection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/storage"
	"github.com/proveniq/properties-backend/internal/telemetry"
)

// extensions maps whitelisted MIME types to the file extension used in
// generated object paths.
var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"application/pdf": ".pdf",
}

// PresignRequest is the input for requesting an evidence upload slot.
type PresignRequest struct {
	ItemID    uuid.UUID `json:"item_id"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
}

// PresignResult hands the client everything it needs to upload and then
// confirm. The bound MIME type and size are echoed back so the client cannot
// later claim different metadata at confirm time.
type PresignResult struct {
	EvidenceID     uuid.UUID                `json:"evidence_id"`
	ObjectPath     string                   `json:"object_path"`
	Upload         *storage.PresignedUpload `json:"upload"`
	BoundMimeType  string                   `json:"bound_mime_type"`
	BoundSizeBytes int64                    `json:"bound_size_bytes"`
}

// PresignEvidence validates upload policy and issues a presigned upload URL
// for a new evidence object under the target item. Draft only.
func (s *Service) PresignEvidence(ctx context.Context, actor auth.Actor, inspectionID uuid.UUID, req PresignRequest) (*PresignResult, error) {
	ins, sc, err := s.loadAuthorized(ctx, actor, inspectionID, true)
	if err != nil {
		return nil, err
	}
	if err := draftGate(ins, "presign evidence"); err != nil {
		return nil, err
	}

	item, err := s.inspections.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.InspectionID != inspectionID {
		return nil, ErrNotFound
	}

	// Policy checks fail closed before the provider is ever called
	if err := storage.ValidateUploadPolicy(req.MimeType, req.SizeBytes, s.cfg.Evidence.MaxUploadSizeBytes()); err != nil {
		return nil, invalid("%s", err.Error())
	}

	evidenceID := uuid.New()
	objectPath := fmt.Sprintf("orgs/%s/inspections/%s/items/%s/%s%s",
		sc.orgID, inspectionID, item.ID, evidenceID, extensions[req.MimeType])

	upload, err := s.store.PresignUpload(ctx, objectPath, req.MimeType, req.SizeBytes, s.cfg.Evidence.PresignTTL)
	if err != nil {
		s.logger.Error("presign upload failed", "object_path", objectPath, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return &PresignResult{
		EvidenceID:     evidenceID,
		ObjectPath:     objectPath,
		Upload:         upload,
		BoundMimeType:  req.MimeType,
		BoundSizeBytes: req.SizeBytes,
	}, nil
}

// ConfirmRequest is the input for confirming a completed upload.
type ConfirmRequest struct {
	ItemID         uuid.UUID `json:"item_id"`
	ObjectPath     string    `json:"object_path"`
	MimeType       string    `json:"mime_type"`
	FileSHA256     *string   `json:"file_sha256,omitempty"`
	EvidenceSource string    `json:"evidence_source"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// ConfirmEvidence records a completed upload as evidence. Idempotent on
// (item, idempotency key): a replay returns the original row unchanged and
// ignores the new request body entirely. On first confirm it checks the
// object actually exists at the provider, captures the provider's immutable
// instance identifier, enqueues hash verification, and writes an audit entry,
// all in one transaction.
func (s *Service) ConfirmEvidence(ctx context.Context, actor auth.Actor, inspectionID uuid.UUID, req ConfirmRequest, meta RequestMeta) (*models.Evidence, error) {
	ins, sc, err := s.loadAuthorized(ctx, actor, inspectionID, true)
	if err != nil {
		return nil, err
	}
	if err := draftGate(ins, "confirm evidence"); err != nil {
		return nil, err
	}

	item, err := s.inspections.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.InspectionID != inspectionID {
		return nil, ErrNotFound
	}

	if req.IdempotencyKey == "" {
		return nil, invalid("idempotency_key is required")
	}

	// Replay detection comes before any other validation: a retry of a
	// confirm that already succeeded must succeed again no matter what else
	// changed in the request.
	existing, err := s.evidence.GetByIdempotencyKey(ctx, item.ID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if !storage.AllowedMimeType(req.MimeType) {
		return nil, invalid("mime type %q is not allowed", req.MimeType)
	}
	if !validEvidenceSources[req.EvidenceSource] {
		return nil, invalid("unknown evidence_source %q", req.EvidenceSource)
	}
	if req.ObjectPath == "" {
		return nil, invalid("object_path is required")
	}

	info, err := s.store.Stat(ctx, req.ObjectPath)
	if err != nil {
		s.logger.Error("evidence stat failed", "object_path", req.ObjectPath, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if info == nil {
		return nil, invalid("upload did not complete")
	}

	ev := &models.Evidence{
		InspectionItemID:      item.ID,
		ObjectPath:            req.ObjectPath,
		MimeType:              req.MimeType,
		SizeBytes:             info.Size,
		FileSHA256Claimed:     req.FileSHA256,
		ConfirmedAt:           time.Now().UTC(),
		EvidenceSource:        req.EvidenceSource,
		StorageInstanceKind:   &info.InstanceKind,
		StorageInstanceID:     &info.InstanceID,
		ConfirmIdempotencyKey: &req.IdempotencyKey,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.evidence.WithTx(tx).Create(ctx, ev); err != nil {
		return nil, err
	}

	scope := fmt.Sprintf("%s:evidence:%s", models.JobTypeVerifyHash, ev.ID)
	if _, err := s.outbox.Enqueue(ctx, tx, models.JobTypeVerifyHash,
		verifyHashPayload{EvidenceID: ev.ID}, &scope, time.Now()); err != nil {
		return nil, err
	}

	entry, err := s.recordAudit(ctx, tx, &actor, &sc.orgID,
		models.AuditActionEvidenceConfirmed, "evidence", ev.ID,
		map[string]interface{}{
			"inspection_id": inspectionID.String(),
			"object_path":   ev.ObjectPath,
			"instance_kind": info.InstanceKind,
			"instance_id":   info.InstanceID,
		}, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.ship(ctx, entry)
	telemetry.EvidenceConfirmationsTotal.WithLabelValues(ev.EvidenceSource).Inc()

	s.logger.Info("evidence confirmed",
		"evidence_id", ev.ID, "inspection_id", inspectionID, "object_path", ev.ObjectPath)
	return ev, nil
}

// verifyHashPayload is the verify_hash job body.
type verifyHashPayload struct {
	EvidenceID uuid.UUID `json:"evidence_id"`
}
