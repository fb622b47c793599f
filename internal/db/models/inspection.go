// Package models - inspection.go defines the inspection aggregate: the inspection
// record itself, its checklist items, and the evidence files confirmed against them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Inspection lifecycle statuses. Transitions only move forward:
// draft -> submitted -> reviewed -> signed -> archived.
const (
	InspectionStatusDraft     = "draft"
	InspectionStatusSubmitted = "submitted"
	InspectionStatusReviewed  = "reviewed"
	InspectionStatusSigned    = "signed"
	InspectionStatusArchived  = "archived"
)

// Inspection types. Move-in/move-out/periodic are lease-scoped;
// pre-stay/post-stay are booking-scoped.
const (
	InspectionTypeMoveIn   = "move_in"
	InspectionTypeMoveOut  = "move_out"
	InspectionTypePeriodic = "periodic"
	InspectionTypePreStay  = "pre_stay"
	InspectionTypePostStay = "post_stay"
)

// Signer kinds recorded on a signed inspection.
const (
	SignedByTenant     = "TENANT"
	SignedByLandlord   = "LANDLORD_ORG_MEMBER"
	SignedByHostSystem = "HOST_SYSTEM"
)

// Item condition codes.
const (
	ConditionGood       = "good"
	ConditionFair       = "fair"
	ConditionDamaged    = "damaged"
	ConditionNotPresent = "not_present"
)

// Evidence source values.
const (
	EvidenceSourceTenant   = "tenant"
	EvidenceSourceLandlord = "landlord"
	EvidenceSourceVendor   = "vendor"
	EvidenceSourceSystem   = "system"
)

// Inspection represents a condition inspection tied to either a lease or a
// booking (exactly one of LeaseID / BookingID is set).
type Inspection struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	LeaseID        *uuid.UUID `json:"lease_id,omitempty" db:"lease_id"`
	BookingID      *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	InspectionType string     `json:"inspection_type" db:"inspection_type"`
	Status         string     `json:"status" db:"status"`
	InspectionDate *time.Time `json:"inspection_date,omitempty" db:"inspection_date"`

	// LockedAt is the authoritative immutability gate. Once set, items and
	// evidence can never change again, regardless of status.
	LockedAt        *time.Time `json:"locked_at,omitempty" db:"locked_at"`
	DeviceSignedAt  *time.Time `json:"device_signed_at,omitempty" db:"device_signed_at"`
	CapturedOffline bool       `json:"captured_offline" db:"captured_offline"`

	ContentHash         *string `json:"content_hash,omitempty" db:"content_hash"`
	CanonicalJSONBlob   []byte  `json:"-" db:"canonical_json_blob"`
	CanonicalJSONSHA256 *string `json:"canonical_json_sha256,omitempty" db:"canonical_json_sha256"`

	CertificatePath   *string `json:"certificate_path,omitempty" db:"certificate_path"`
	CertificateSHA256 *string `json:"certificate_sha256,omitempty" db:"certificate_sha256"`

	TenantSignedAt   *time.Time `json:"tenant_signed_at,omitempty" db:"tenant_signed_at"`
	LandlordSignedAt *time.Time `json:"landlord_signed_at,omitempty" db:"landlord_signed_at"`
	SignedBy         *string    `json:"signed_by,omitempty" db:"signed_by"`
	SignedActorID    *uuid.UUID `json:"signed_actor_id,omitempty" db:"signed_actor_id"`
	SignedAt         *time.Time `json:"signed_at,omitempty" db:"signed_at"`

	Notes     *string    `json:"notes,omitempty" db:"notes"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Locked reports whether the inspection content is frozen.
func (i *Inspection) Locked() bool {
	return i.LockedAt != nil
}

// InspectionItem is one checklist entry (room + item) on an inspection.
type InspectionItem struct {
	ID           uuid.UUID `json:"id" db:"id"`
	InspectionID uuid.UUID `json:"inspection_id" db:"inspection_id"`
	RoomKey      string    `json:"room_key" db:"room_key"`
	ItemKey      string    `json:"item_key" db:"item_key"`
	Ordinal      int       `json:"ordinal" db:"ordinal"`
	Condition    string    `json:"condition" db:"condition"`
	Notes        *string   `json:"notes,omitempty" db:"notes"`
	// EstimatedRepairCents is advisory only and never enters the canonical payload.
	EstimatedRepairCents *int64    `json:"estimated_repair_cents,omitempty" db:"estimated_repair_cents"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`

	// Evidence is populated by the repository when loading the full aggregate.
	Evidence []Evidence `json:"evidence,omitempty" db:"-"`
}

// Evidence is a confirmed upload bound to an inspection item. A row exists only
// after the client confirms the upload; presigning alone writes nothing.
type Evidence struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	InspectionItemID   uuid.UUID `json:"inspection_item_id" db:"inspection_item_id"`
	ObjectPath         string    `json:"object_path" db:"object_path"`
	MimeType           string    `json:"mime_type" db:"mime_type"`
	SizeBytes          int64     `json:"size_bytes" db:"size_bytes"`
	FileSHA256Claimed  *string   `json:"file_sha256_claimed,omitempty" db:"file_sha256_claimed"`
	FileSHA256Verified *string   `json:"file_sha256_verified,omitempty" db:"file_sha256_verified"`
	ConfirmedAt        time.Time `json:"confirmed_at" db:"confirmed_at"`
	EvidenceSource     string    `json:"evidence_source" db:"evidence_source"`

	// StorageInstanceKind/ID form an opaque tamper-detection token: the
	// provider-native object version captured at confirm time (GCS generation,
	// S3/Azure ETag). The service compares it byte-for-byte later and never
	// interprets its contents.
	StorageInstanceKind   *string   `json:"storage_instance_kind,omitempty" db:"storage_instance_kind"`
	StorageInstanceID     *string   `json:"storage_instance_id,omitempty" db:"storage_instance_id"`
	ConfirmIdempotencyKey *string   `json:"-" db:"confirm_idempotency_key"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}
