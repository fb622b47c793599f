// Package inspection implements the inspection lifecycle: the state machine
// governing an inspection record and its evidence. It owns the upload-confirm
// protocol, the submit/sign/attest transitions, and the orchestration of the
// canonical serializer, the storage provider, and the job outbox. Lifecycle
// transitions write their audit entry inside the same transaction as the state
// change, and every transition re-checks the current state in the UPDATE it
// performs, so concurrent callers race safely.
package inspection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	auditship "github.com/proveniq/properties-backend/internal/audit"
	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/config"
	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/db/repositories"
	"github.com/proveniq/properties-backend/internal/storage"
)

// Inspection types valid per scope. Lease-scoped and booking-scoped
// inspections use disjoint type sets.
var (
	leaseInspectionTypes = map[string]bool{
		models.InspectionTypeMoveIn:   true,
		models.InspectionTypeMoveOut:  true,
		models.InspectionTypePeriodic: true,
	}
	bookingInspectionTypes = map[string]bool{
		models.InspectionTypePreStay:  true,
		models.InspectionTypePostStay: true,
	}
	validConditions = map[string]bool{
		models.ConditionGood:       true,
		models.ConditionFair:       true,
		models.ConditionDamaged:    true,
		models.ConditionNotPresent: true,
	}
	validEvidenceSources = map[string]bool{
		models.EvidenceSourceTenant:   true,
		models.EvidenceSourceLandlord: true,
		models.EvidenceSourceVendor:   true,
		models.EvidenceSourceSystem:   true,
	}
)

// RequestMeta carries per-request client metadata into audit entries.
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
}

// Service coordinates inspections, their items and evidence, the storage
// provider, and the job outbox.
type Service struct {
	db          *sqlx.DB
	store       storage.Provider
	access      *repositories.AccessRepository
	inspections *repositories.InspectionRepository
	evidence    *repositories.EvidenceRepository
	outbox      *repositories.OutboxRepository
	audit       *repositories.AuditRepository
	shipper     auditship.Shipper
	cfg         *config.Config
	logger      *slog.Logger
}

// NewService creates a new inspection Service. shipper may be nil to disable
// post-commit audit shipping.
func NewService(db *sqlx.DB, store storage.Provider, shipper auditship.Shipper, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		store:       store,
		access:      repositories.NewAccessRepository(db),
		inspections: repositories.NewInspectionRepository(db),
		evidence:    repositories.NewEvidenceRepository(db),
		outbox:      repositories.NewOutboxRepository(db),
		audit:       repositories.NewAuditRepository(db),
		shipper:     shipper,
		cfg:         cfg,
		logger:      logger,
	}
}

// scope describes the parent an inspection hangs off and the org that owns it.
type scope struct {
	orgID     uuid.UUID
	leaseID   *uuid.UUID
	bookingID *uuid.UUID
}

// resolveScope loads the inspection's parent and checks the caller is
// authorized against it. forWrite distinguishes mutation (Forbidden on
// failure) from read visibility (NotFound on failure).
func (s *Service) resolveScope(ctx context.Context, actor auth.Actor, ins *models.Inspection, forWrite bool) (*scope, error) {
	denied := ErrNotFound
	if forWrite {
		denied = ErrForbidden
	}

	switch {
	case ins.LeaseID != nil:
		lease, err := s.access.GetLease(ctx, *ins.LeaseID)
		if err != nil {
			return nil, err
		}
		if lease == nil {
			return nil, ErrNotFound
		}
		ok, err := s.leaseAuthorized(ctx, actor, lease)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, denied
		}
		return &scope{orgID: lease.OrgID, leaseID: &lease.ID}, nil

	case ins.BookingID != nil:
		booking, err := s.access.GetBooking(ctx, *ins.BookingID)
		if err != nil {
			return nil, err
		}
		if booking == nil {
			return nil, ErrNotFound
		}
		// Guests never authenticate; only org members act on bookings.
		if !actor.IsOrgMember() || *actor.OrgID != booking.OrgID {
			return nil, denied
		}
		return &scope{orgID: booking.OrgID, bookingID: &booking.ID}, nil
	}

	return nil, fmt.Errorf("inspection %s has no parent scope", ins.ID)
}

func (s *Service) leaseAuthorized(ctx context.Context, actor auth.Actor, lease *models.Lease) (bool, error) {
	if actor.IsOrgMember() {
		return *actor.OrgID == lease.OrgID, nil
	}
	if actor.IsTenant() {
		return s.access.TenantHasLeaseAccess(ctx, lease.ID, actor.UserID)
	}
	return false, nil
}

// loadAuthorized fetches an inspection and resolves its scope in one step.
func (s *Service) loadAuthorized(ctx context.Context, actor auth.Actor, id uuid.UUID, forWrite bool) (*models.Inspection, *scope, error) {
	ins, err := s.inspections.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if ins == nil {
		return nil, nil, ErrNotFound
	}
	sc, err := s.resolveScope(ctx, actor, ins, forWrite)
	if err != nil {
		return nil, nil, err
	}
	return ins, sc, nil
}

// CreateRequest is the input for creating a draft inspection. Exactly one of
// LeaseID / BookingID must be set.
type CreateRequest struct {
	LeaseID         *uuid.UUID `json:"lease_id,omitempty"`
	BookingID       *uuid.UUID `json:"booking_id,omitempty"`
	InspectionType  string     `json:"inspection_type"`
	InspectionDate  *time.Time `json:"inspection_date,omitempty"`
	CapturedOffline bool       `json:"captured_offline"`
	Notes           *string    `json:"notes,omitempty"`
}

// Create creates a draft inspection after authorizing the actor against the
// parent lease or booking.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*models.Inspection, error) {
	if (req.LeaseID == nil) == (req.BookingID == nil) {
		return nil, invalid("exactly one of lease_id or booking_id must be set")
	}

	switch {
	case req.LeaseID != nil:
		if !leaseInspectionTypes[req.InspectionType] {
			return nil, invalid("inspection_type %q is not valid for a lease-scoped inspection", req.InspectionType)
		}
		lease, err := s.access.GetLease(ctx, *req.LeaseID)
		if err != nil {
			return nil, err
		}
		if lease == nil {
			return nil, ErrNotFound
		}
		ok, err := s.leaseAuthorized(ctx, actor, lease)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}

	case req.BookingID != nil:
		if !bookingInspectionTypes[req.InspectionType] {
			return nil, invalid("inspection_type %q is not valid for a booking-scoped inspection", req.InspectionType)
		}
		booking, err := s.access.GetBooking(ctx, *req.BookingID)
		if err != nil {
			return nil, err
		}
		if booking == nil {
			return nil, ErrNotFound
		}
		if !actor.IsOrgMember() || *actor.OrgID != booking.OrgID {
			return nil, ErrForbidden
		}
	}

	ins := &models.Inspection{
		LeaseID:         req.LeaseID,
		BookingID:       req.BookingID,
		InspectionType:  req.InspectionType,
		InspectionDate:  req.InspectionDate,
		CapturedOffline: req.CapturedOffline,
		Notes:           req.Notes,
		CreatedBy:       &actor.UserID,
	}
	if err := s.inspections.Create(ctx, ins); err != nil {
		return nil, err
	}

	s.logger.Info("inspection created",
		"inspection_id", ins.ID, "type", ins.InspectionType, "user_id", actor.UserID)
	return ins, nil
}

// ItemDetail is one checklist item with its confirmed evidence.
type ItemDetail struct {
	models.InspectionItem
	Evidence []models.Evidence `json:"evidence"`
}

// Detail is the full inspection aggregate returned by Get. EvidenceCount is
// nil when the draft-privacy rule suppresses evidence visibility.
type Detail struct {
	Inspection    *models.Inspection `json:"inspection"`
	Items         []ItemDetail       `json:"items"`
	EvidenceCount *int               `json:"evidence_count,omitempty"`
}

// Get returns an inspection with its items and evidence. Org-side callers do
// not see confirmed evidence on a tenant-created draft until it is submitted.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Detail, error) {
	ins, _, err := s.loadAuthorized(ctx, actor, id, false)
	if err != nil {
		return nil, err
	}

	items, err := s.inspections.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Inspection: ins, Items: make([]ItemDetail, 0, len(items))}

	if s.hideDraftEvidence(actor, ins) {
		for _, item := range items {
			detail.Items = append(detail.Items, ItemDetail{InspectionItem: item, Evidence: []models.Evidence{}})
		}
		return detail, nil
	}

	evidence, err := s.evidence.ListForInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	byItem := make(map[uuid.UUID][]models.Evidence)
	for _, ev := range evidence {
		byItem[ev.InspectionItemID] = append(byItem[ev.InspectionItemID], ev)
	}
	for _, item := range items {
		evs := byItem[item.ID]
		if evs == nil {
			evs = []models.Evidence{}
		}
		detail.Items = append(detail.Items, ItemDetail{InspectionItem: item, Evidence: evs})
	}
	count := len(evidence)
	detail.EvidenceCount = &count
	return detail, nil
}

// hideDraftEvidence applies the draft-privacy rule: an org member does not see
// evidence on someone else's draft until it is locked.
func (s *Service) hideDraftEvidence(actor auth.Actor, ins *models.Inspection) bool {
	if ins.Status != models.InspectionStatusDraft || ins.Locked() {
		return false
	}
	if !actor.IsOrgMember() {
		return false
	}
	return ins.CreatedBy == nil || *ins.CreatedBy != actor.UserID
}

// ListByLease lists a lease's inspections visible to the actor.
func (s *Service) ListByLease(ctx context.Context, actor auth.Actor, leaseID uuid.UUID) ([]*models.Inspection, error) {
	lease, err := s.access.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrNotFound
	}
	ok, err := s.leaseAuthorized(ctx, actor, lease)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.inspections.ListByLease(ctx, leaseID)
}

// ListByBooking lists a booking's inspections visible to the actor.
func (s *Service) ListByBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) ([]*models.Inspection, error) {
	booking, err := s.access.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrNotFound
	}
	if !actor.IsOrgMember() || *actor.OrgID != booking.OrgID {
		return nil, ErrNotFound
	}
	return s.inspections.ListByBooking(ctx, bookingID)
}

// ItemRequest is the input for upserting a checklist item.
type ItemRequest struct {
	RoomKey              string  `json:"room_key"`
	ItemKey              string  `json:"item_key"`
	Ordinal              int     `json:"ordinal"`
	Condition            string  `json:"condition"`
	Notes                *string `json:"notes,omitempty"`
	EstimatedRepairCents *int64  `json:"estimated_repair_cents,omitempty"`
}

// UpsertItem creates or updates a checklist item. Rejected once the
// inspection is locked, regardless of what the status column says.
func (s *Service) UpsertItem(ctx context.Context, actor auth.Actor, inspectionID uuid.UUID, req ItemRequest) (*models.InspectionItem, error) {
	ins, _, err := s.loadAuthorized(ctx, actor, inspectionID, true)
	if err != nil {
		return nil, err
	}
	if err := draftGate(ins, "upsert item"); err != nil {
		return nil, err
	}

	if req.RoomKey == "" || req.ItemKey == "" {
		return nil, invalid("room_key and item_key are required")
	}
	if req.Ordinal < 0 {
		return nil, invalid("ordinal must not be negative")
	}
	if !validConditions[req.Condition] {
		return nil, invalid("unknown condition %q", req.Condition)
	}

	item := &models.InspectionItem{
		InspectionID:         inspectionID,
		RoomKey:              req.RoomKey,
		ItemKey:              req.ItemKey,
		Ordinal:              req.Ordinal,
		Condition:            req.Condition,
		Notes:                req.Notes,
		EstimatedRepairCents: req.EstimatedRepairCents,
	}
	if err := s.inspections.UpsertItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns an inspection's items in canonical order.
func (s *Service) ListItems(ctx context.Context, actor auth.Actor, inspectionID uuid.UUID) ([]models.InspectionItem, error) {
	if _, _, err := s.loadAuthorized(ctx, actor, inspectionID, false); err != nil {
		return nil, err
	}
	return s.inspections.ListItems(ctx, inspectionID)
}

// draftGate rejects mutation once the inspection is locked or has left draft.
// The lock timestamp, not the status, is the authoritative gate: a status
// rolled back to draft by hand does not re-open a locked inspection.
func draftGate(ins *models.Inspection, op string) error {
	if ins.Locked() {
		return wrongState(op, "inspection content is locked")
	}
	if ins.Status != models.InspectionStatusDraft {
		return wrongState(op, fmt.Sprintf("inspection is %s, not draft", ins.Status))
	}
	return nil
}

// recordAudit builds and appends an audit entry inside the caller's
// transaction.
func (s *Service) recordAudit(ctx context.Context, q sqlx.ExtContext, actor *auth.Actor, orgID *uuid.UUID, action, resourceType string, resourceID uuid.UUID, details map[string]interface{}, meta RequestMeta) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		OrgID:        orgID,
		Action:       action,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Details:      details,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}
	if actor != nil {
		entry.UserID = &actor.UserID
	}
	if err := s.audit.Record(ctx, q, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ship forwards a committed audit entry to the configured external
// destinations. Best effort: shipping failures are logged, never surfaced.
func (s *Service) ship(ctx context.Context, entry *models.AuditEntry) {
	if s.shipper == nil || entry == nil {
		return
	}
	logEntry := &auditship.LogEntry{
		Timestamp: entry.CreatedAt,
		Action:    entry.Action,
		Metadata:  entry.Details,
	}
	if entry.UserID != nil {
		logEntry.UserID = entry.UserID.String()
	}
	if entry.OrgID != nil {
		logEntry.OrganizationID = entry.OrgID.String()
	}
	if entry.ResourceType != nil {
		logEntry.ResourceType = *entry.ResourceType
	}
	if entry.ResourceID != nil {
		logEntry.ResourceID = entry.ResourceID.String()
	}
	if entry.IPAddress != nil {
		logEntry.IPAddress = *entry.IPAddress
	}
	if err := s.shipper.Ship(ctx, logEntry); err != nil {
		s.logger.Warn("audit shipping failed", "action", entry.Action, "error", err)
	}
}
