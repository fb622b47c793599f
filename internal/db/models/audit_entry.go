// Package models - audit_entry.go defines the append-only audit trail entry,
// capturing actor, action, affected resource, client IP, and arbitrary details.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the service.
const (
	AuditActionInspectionSubmitted  = "inspection_submitted"
	AuditActionInspectionSigned     = "inspection_signed"
	AuditActionInspectionAttested   = "inspection_attested"
	AuditActionEvidenceConfirmed    = "evidence_confirmed"
	AuditActionIntegrityDiscrepancy = "integrity_discrepancy"
	AuditActionCertificateGenerated = "certificate_generated"
)

// AuditEntry is one append-only audit trail row. Entries are written in the
// same transaction as the state change they describe; there is no update or
// delete path.
type AuditEntry struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	OrgID        *uuid.UUID             `json:"org_id,omitempty" db:"org_id"`
	UserID       *uuid.UUID             `json:"user_id,omitempty" db:"user_id"` // nil for system actions
	Action       string                 `json:"action" db:"action"`
	ResourceType *string                `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   *uuid.UUID             `json:"resource_id,omitempty" db:"resource_id"`
	Details      map[string]interface{} `json:"details,omitempty" db:"-"` // JSONB: additional context
	IPAddress    *string                `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    *string                `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}
