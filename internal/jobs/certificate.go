package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/db/repositories"
	"github.com/proveniq/properties-backend/internal/inspection"
	"github.com/proveniq/properties-backend/internal/storage"
	"github.com/proveniq/properties-backend/pkg/checksum"
)

type certificatePayload struct {
	InspectionID uuid.UUID `json:"inspection_id"`
}

// CertificateGenerator handles generate_certificate jobs: it builds the
// certificate document for a locked inspection, uploads it to storage, and
// records the artifact path and hash on the inspection row exactly once.
// Until this runs, certificate reads synthesize the same document on demand,
// so the job is a durability upgrade rather than a prerequisite.
type CertificateGenerator struct {
	db          *sqlx.DB
	inspections *repositories.InspectionRepository
	access      *repositories.AccessRepository
	audit       *repositories.AuditRepository
	store       storage.Provider
	logger      *slog.Logger
}

// NewCertificateGenerator creates a generate_certificate job handler.
func NewCertificateGenerator(db *sqlx.DB, store storage.Provider, logger *slog.Logger) *CertificateGenerator {
	return &CertificateGenerator{
		db:          db,
		inspections: repositories.NewInspectionRepository(db),
		access:      repositories.NewAccessRepository(db),
		audit:       repositories.NewAuditRepository(db),
		store:       store,
		logger:      logger,
	}
}

// Handle implements the Handler signature for generate_certificate jobs.
func (g *CertificateGenerator) Handle(ctx context.Context, job *models.OutboxJob) error {
	var payload certificatePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrPermanent, err)
	}

	ins, err := g.inspections.GetByID(ctx, payload.InspectionID)
	if err != nil {
		return fmt.Errorf("loading inspection: %w", err)
	}
	if ins == nil {
		return fmt.Errorf("%w: inspection %s no longer exists", ErrPermanent, payload.InspectionID)
	}
	if ins.CertificatePath != nil {
		// A previous attempt already stored the artifact.
		return nil
	}

	doc, err := inspection.BuildCertificate(ins)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	orgID, err := g.resolveOrg(ctx, ins)
	if err != nil {
		return err
	}

	sha, err := checksum.CalculateSHA256(bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("hashing certificate: %w", err)
	}

	path := inspection.CertificatePath(orgID, ins.ID)
	if _, err := g.store.Upload(ctx, path, bytes.NewReader(doc), "application/json"); err != nil {
		return fmt.Errorf("uploading certificate: %w", err)
	}

	stored, err := g.inspections.SetCertificate(ctx, ins.ID, path, sha)
	if err != nil {
		return fmt.Errorf("recording certificate: %w", err)
	}
	if !stored {
		// Lost the race against a concurrent generation; the stored artifact
		// is identical because the document is deterministic.
		return nil
	}

	resourceType := "inspection"
	entry := &models.AuditEntry{
		OrgID:        &orgID,
		Action:       models.AuditActionCertificateGenerated,
		ResourceType: &resourceType,
		ResourceID:   &ins.ID,
		Details: map[string]interface{}{
			"certificate_path":   path,
			"certificate_sha256": sha,
		},
	}
	if err := g.audit.Record(ctx, g.db, entry); err != nil {
		return fmt.Errorf("recording certificate audit entry: %w", err)
	}
	return nil
}

func (g *CertificateGenerator) resolveOrg(ctx context.Context, ins *models.Inspection) (uuid.UUID, error) {
	switch {
	case ins.LeaseID != nil:
		lease, err := g.access.GetLease(ctx, *ins.LeaseID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("loading lease: %w", err)
		}
		if lease == nil {
			return uuid.Nil, fmt.Errorf("%w: lease %s no longer exists", ErrPermanent, *ins.LeaseID)
		}
		return lease.OrgID, nil
	case ins.BookingID != nil:
		booking, err := g.access.GetBooking(ctx, *ins.BookingID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("loading booking: %w", err)
		}
		if booking == nil {
			return uuid.Nil, fmt.Errorf("%w: booking %s no longer exists", ErrPermanent, *ins.BookingID)
		}
		return booking.OrgID, nil
	}
	return uuid.Nil, fmt.Errorf("%w: inspection %s has no parent scope", ErrPermanent, ins.ID)
}
