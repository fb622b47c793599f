// Package inspection - certificate.go builds the certificate document: a
// durable JSON artifact stating the inspection's content hash and signing
// metadata. The generation job uploads it to storage; until that completes,
// retrieval synthesizes the identical document on demand.
package inspection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/db/models"
)

// CertificateDocument is the artifact content. Fields are derived entirely
// from the locked inspection so on-demand synthesis and the stored artifact
// are byte-for-byte identical.
type CertificateDocument struct {
	SchemaVersion    string     `json:"schema_version"`
	InspectionID     uuid.UUID  `json:"inspection_id"`
	LeaseID          *uuid.UUID `json:"lease_id,omitempty"`
	BookingID        *uuid.UUID `json:"booking_id,omitempty"`
	InspectionType   string     `json:"inspection_type"`
	ContentHash      string     `json:"content_hash"`
	LockedAt         time.Time  `json:"locked_at"`
	TenantSignedAt   *time.Time `json:"tenant_signed_at,omitempty"`
	LandlordSignedAt *time.Time `json:"landlord_signed_at,omitempty"`
	SignedBy         *string    `json:"signed_by,omitempty"`
	SignedAt         *time.Time `json:"signed_at,omitempty"`
}

// certificateSchemaVersion identifies the document layout.
const certificateSchemaVersion = "1"

// BuildCertificate renders the certificate document for a locked inspection.
func BuildCertificate(ins *models.Inspection) ([]byte, error) {
	if !ins.Locked() || ins.ContentHash == nil {
		return nil, fmt.Errorf("inspection %s is not locked", ins.ID)
	}
	doc := CertificateDocument{
		SchemaVersion:    certificateSchemaVersion,
		InspectionID:     ins.ID,
		LeaseID:          ins.LeaseID,
		BookingID:        ins.BookingID,
		InspectionType:   ins.InspectionType,
		ContentHash:      *ins.ContentHash,
		LockedAt:         ins.LockedAt.UTC(),
		TenantSignedAt:   ins.TenantSignedAt,
		LandlordSignedAt: ins.LandlordSignedAt,
		SignedBy:         ins.SignedBy,
		SignedAt:         ins.SignedAt,
	}
	return json.Marshal(doc)
}

// CertificatePath returns the storage path the generation job writes the
// artifact to.
func CertificatePath(orgID, inspectionID uuid.UUID) string {
	return fmt.Sprintf("orgs/%s/inspections/%s/certificate.json", orgID, inspectionID)
}

// CertificateResult is either a redirect to the stored artifact or the
// synthesized document.
type CertificateResult struct {
	// RedirectURL is set once the generation job has stored the artifact.
	RedirectURL string `json:"redirect_url,omitempty"`
	// Document and SHA256 carry the synthesized content before that.
	Document []byte `json:"document,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// Certificate returns the inspection certificate: a presigned download URL
// once the stored artifact exists, the synthesized document before that.
func (s *Service) Certificate(ctx context.Context, actor auth.Actor, id uuid.UUID) (*CertificateResult, error) {
	ins, _, err := s.loadAuthorized(ctx, actor, id, false)
	if err != nil {
		return nil, err
	}
	if !ins.Locked() || ins.ContentHash == nil {
		return nil, wrongState("certificate", "inspection has not been submitted")
	}

	if ins.CertificatePath != nil {
		url, err := s.store.PresignDownload(ctx, *ins.CertificatePath, s.cfg.Evidence.PresignTTL)
		if err != nil {
			s.logger.Error("certificate presign failed", "inspection_id", id, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return &CertificateResult{RedirectURL: url}, nil
	}

	doc, err := BuildCertificate(ins)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(doc)
	return &CertificateResult{Document: doc, SHA256: hex.EncodeToString(sum[:])}, nil
}
