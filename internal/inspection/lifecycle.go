// Package inspection - lifecycle.go implements the submit, sign, and attest
// transitions. Each transition re-checks the current state inside the UPDATE
// that performs it, so two concurrent calls on the same inspection produce
// exactly one success and one wrong-state rejection.
package inspection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/canonical"
	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/telemetry"
)

// certificatePayload is the generate_certificate job body.
type certificatePayload struct {
	InspectionID uuid.UUID `json:"inspection_id"`
}

// loadCanonicalInput assembles the items-with-evidence aggregate the
// serializer consumes.
func (s *Service) loadCanonicalInput(ctx context.Context, inspectionID uuid.UUID) ([]models.InspectionItem, error) {
	items, err := s.inspections.ListItems(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	evidence, err := s.evidence.ListForInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	byItem := make(map[uuid.UUID][]models.Evidence)
	for _, ev := range evidence {
		byItem[ev.InspectionItemID] = append(byItem[ev.InspectionItemID], ev)
	}
	for i := range items {
		items[i].Evidence = byItem[items[i].ID]
	}
	return items, nil
}

// Submit locks the inspection: the canonical hash is computed over the
// current items and evidence while the status is still draft, then locked_at,
// the frozen payload, and the content hash are stored and the status flips to
// submitted. Enqueues certificate generation and writes an audit entry in the
// same transaction.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, id uuid.UUID, meta RequestMeta) (*models.Inspection, error) {
	ins, sc, err := s.loadAuthorized(ctx, actor, id, true)
	if err != nil {
		return nil, err
	}
	if err := draftGate(ins, "submit"); err != nil {
		return nil, err
	}

	items, err := s.loadCanonicalInput(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := canonical.Compute(ins, items)
	if err != nil {
		return nil, err
	}

	lockedAt := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRepo := s.inspections.WithTx(tx)
	ok, err := txRepo.MarkSubmitted(ctx, id, lockedAt, res.SHA256, res.JSON)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrongState("submit", "inspection is no longer in draft")
	}

	scope := fmt.Sprintf("%s:inspection:%s", models.JobTypeGenerateCertificate, id)
	if _, err := s.outbox.Enqueue(ctx, tx, models.JobTypeGenerateCertificate,
		certificatePayload{InspectionID: id}, &scope, time.Now()); err != nil {
		return nil, err
	}

	entry, err := s.recordAudit(ctx, tx, &actor, &sc.orgID,
		models.AuditActionInspectionSubmitted, "inspection", id,
		map[string]interface{}{"content_hash": res.SHA256}, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.ship(ctx, entry)
	telemetry.InspectionSubmissionsTotal.WithLabelValues(ins.InspectionType).Inc()

	s.logger.Info("inspection submitted", "inspection_id", id, "content_hash", res.SHA256)

	return s.inspections.GetByID(ctx, id)
}

// Sign records one role's signature on a lease-scoped inspection. Each role
// signs at most once; the status flips to signed only once both the tenant
// and the landlord signature are present.
func (s *Service) Sign(ctx context.Context, actor auth.Actor, id uuid.UUID, meta RequestMeta) (*models.Inspection, error) {
	ins, sc, err := s.loadAuthorized(ctx, actor, id, true)
	if err != nil {
		return nil, err
	}
	if ins.LeaseID == nil {
		return nil, invalid("sign applies to lease-scoped inspections; booking-scoped inspections use attest")
	}

	var role string
	switch {
	case actor.IsTenant():
		role = models.SignedByTenant
	case actor.IsOrgMember():
		role = models.SignedByLandlord
	default:
		return nil, ErrForbidden
	}

	if !ins.Locked() {
		return nil, wrongState("sign", "inspection has not been submitted")
	}
	if ins.Status == models.InspectionStatusSigned || ins.Status == models.InspectionStatusArchived {
		return nil, wrongState("sign", "inspection is already signed")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRepo := s.inspections.WithTx(tx)
	signedAt := time.Now().UTC()

	ok, err := txRepo.RecordRoleSignature(ctx, id, role, signedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrongState("sign", fmt.Sprintf("%s has already signed or the inspection is not signable", role))
	}

	current, err := txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	final := current.TenantSignedAt != nil && current.LandlordSignedAt != nil
	if final {
		ok, err := txRepo.MarkSigned(ctx, id, role, &actor.UserID, signedAt)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, wrongState("sign", "inspection is no longer signable")
		}
	}

	entry, err := s.recordAudit(ctx, tx, &actor, &sc.orgID,
		models.AuditActionInspectionSigned, "inspection", id,
		map[string]interface{}{"role": role, "final": final}, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.ship(ctx, entry)
	telemetry.InspectionSignaturesTotal.WithLabelValues(actor.Role).Inc()

	s.logger.Info("inspection signed", "inspection_id", id, "role", role, "final", final)

	return s.inspections.GetByID(ctx, id)
}

// Attest performs the single-call host attestation path for a booking-scoped
// inspection, flipping it directly to signed. If submit was skipped and no
// content hash exists yet, the hash is computed inline with the same
// canonical rules before locking.
func (s *Service) Attest(ctx context.Context, actor auth.Actor, id uuid.UUID, meta RequestMeta) (*models.Inspection, error) {
	ins, sc, err := s.loadAuthorized(ctx, actor, id, true)
	if err != nil {
		return nil, err
	}
	if ins.BookingID == nil {
		return nil, invalid("attest applies to booking-scoped inspections; lease-scoped inspections use sign")
	}
	if ins.Status == models.InspectionStatusSigned || ins.Status == models.InspectionStatusArchived {
		return nil, wrongState("attest", "inspection is already signed")
	}

	var contentHash string
	var canonicalJSON []byte
	if ins.ContentHash != nil {
		contentHash = *ins.ContentHash
		canonicalJSON = ins.CanonicalJSONBlob
	} else {
		items, err := s.loadCanonicalInput(ctx, id)
		if err != nil {
			return nil, err
		}
		res, err := canonical.Compute(ins, items)
		if err != nil {
			return nil, err
		}
		contentHash = res.SHA256
		canonicalJSON = res.JSON
	}

	attestedAt := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRepo := s.inspections.WithTx(tx)
	ok, err := txRepo.MarkAttested(ctx, id, &actor.UserID, attestedAt, contentHash, canonicalJSON)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrongState("attest", "inspection is no longer attestable")
	}

	scope := fmt.Sprintf("%s:inspection:%s", models.JobTypeGenerateCertificate, id)
	if _, err := s.outbox.Enqueue(ctx, tx, models.JobTypeGenerateCertificate,
		certificatePayload{InspectionID: id}, &scope, time.Now()); err != nil {
		return nil, err
	}

	entry, err := s.recordAudit(ctx, tx, &actor, &sc.orgID,
		models.AuditActionInspectionAttested, "inspection", id,
		map[string]interface{}{"content_hash": contentHash}, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.ship(ctx, entry)

	s.logger.Info("inspection attested", "inspection_id", id, "content_hash", contentHash)

	return s.inspections.GetByID(ctx, id)
}
