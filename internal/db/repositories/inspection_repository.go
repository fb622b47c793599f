// inspection_repository.go implements InspectionRepository, providing database queries
// for inspection records, their checklist items, and lifecycle transitions. Transitions
// re-check the current state in the UPDATE's WHERE clause so two concurrent calls can
// never both succeed.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/models"
)

// InspectionRepository handles inspection and inspection item database operations.
// It is constructed over an sqlx.ExtContext so the same repository runs against
// *sqlx.DB or *sqlx.Tx.
type InspectionRepository struct {
	q sqlx.ExtContext
}

// NewInspectionRepository creates a new InspectionRepository
func NewInspectionRepository(q sqlx.ExtContext) *InspectionRepository {
	return &InspectionRepository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *InspectionRepository) WithTx(tx *sqlx.Tx) *InspectionRepository {
	return &InspectionRepository{q: tx}
}

// Create inserts a new draft inspection
func (r *InspectionRepository) Create(ctx context.Context, ins *models.Inspection) error {
	now := time.Now().UTC()
	if ins.ID == uuid.Nil {
		ins.ID = uuid.New()
	}
	ins.Status = models.InspectionStatusDraft
	ins.CreatedAt = now
	ins.UpdatedAt = now

	query := `
		INSERT INTO inspections (
			id, lease_id, booking_id, inspection_type, status, inspection_date,
			captured_offline, notes, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.q.ExecContext(ctx, query,
		ins.ID, ins.LeaseID, ins.BookingID, ins.InspectionType, ins.Status,
		ins.InspectionDate, ins.CapturedOffline, ins.Notes, ins.CreatedBy,
		ins.CreatedAt, ins.UpdatedAt,
	)
	return err
}

// GetByID retrieves an inspection by ID, or (nil, nil) if it does not exist
func (r *InspectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Inspection, error) {
	var ins models.Inspection
	query := `SELECT * FROM inspections WHERE id = $1`
	err := sqlx.GetContext(ctx, r.q, &ins, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

// ListByLease lists inspections for a lease, newest first
func (r *InspectionRepository) ListByLease(ctx context.Context, leaseID uuid.UUID) ([]*models.Inspection, error) {
	var list []*models.Inspection
	query := `SELECT * FROM inspections WHERE lease_id = $1 ORDER BY created_at DESC`
	err := sqlx.SelectContext(ctx, r.q, &list, query, leaseID)
	return list, err
}

// ListByBooking lists inspections for a booking, newest first
func (r *InspectionRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.Inspection, error) {
	var list []*models.Inspection
	query := `SELECT * FROM inspections WHERE booking_id = $1 ORDER BY created_at DESC`
	err := sqlx.SelectContext(ctx, r.q, &list, query, bookingID)
	return list, err
}

// GetSignedByType returns the most recent signed inspection of the given type
// for a lease, or (nil, nil) if none exists. Used by the inspection diff report.
func (r *InspectionRepository) GetSignedByType(ctx context.Context, leaseID uuid.UUID, inspectionType string) (*models.Inspection, error) {
	var ins models.Inspection
	query := `
		SELECT * FROM inspections
		WHERE lease_id = $1 AND inspection_type = $2 AND status = $3
		ORDER BY signed_at DESC NULLS LAST, created_at DESC
		LIMIT 1`
	err := sqlx.GetContext(ctx, r.q, &ins, query, leaseID, inspectionType, models.InspectionStatusSigned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

// UpsertItem creates or updates an item keyed by (inspection, room key,
// ordinal, item key). The caller is responsible for checking the draft/lock
// gate first.
func (r *InspectionRepository) UpsertItem(ctx context.Context, item *models.InspectionItem) error {
	now := time.Now().UTC()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	query := `
		INSERT INTO inspection_items (
			id, inspection_id, room_key, item_key, ordinal, condition, notes,
			estimated_repair_cents, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ON CONSTRAINT uq_inspection_item_order DO UPDATE SET
			condition = EXCLUDED.condition,
			notes = EXCLUDED.notes,
			estimated_repair_cents = EXCLUDED.estimated_repair_cents,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	// RETURNING hands back the surviving row's identity on the update path
	row := r.q.QueryRowxContext(ctx, query,
		item.ID, item.InspectionID, item.RoomKey, item.ItemKey, item.Ordinal,
		item.Condition, item.Notes, item.EstimatedRepairCents,
		item.CreatedAt, item.UpdatedAt,
	)
	return row.Scan(&item.ID, &item.CreatedAt)
}

// ListItems returns all items of an inspection in canonical order
func (r *InspectionRepository) ListItems(ctx context.Context, inspectionID uuid.UUID) ([]models.InspectionItem, error) {
	var items []models.InspectionItem
	query := `
		SELECT * FROM inspection_items
		WHERE inspection_id = $1
		ORDER BY room_key, ordinal, item_key`
	err := sqlx.SelectContext(ctx, r.q, &items, query, inspectionID)
	return items, err
}

// GetItem retrieves one item by ID, or (nil, nil) if it does not exist
func (r *InspectionRepository) GetItem(ctx context.Context, itemID uuid.UUID) (*models.InspectionItem, error) {
	var item models.InspectionItem
	query := `SELECT * FROM inspection_items WHERE id = $1`
	err := sqlx.GetContext(ctx, r.q, &item, query, itemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkSubmitted locks the inspection: sets locked_at, the content hash, and
// the frozen canonical payload, and flips status draft -> submitted. The WHERE
// clause re-checks status and lock under the surrounding transaction; zero
// rows affected means another caller got there first.
func (r *InspectionRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, lockedAt time.Time, contentHash string, canonicalJSON []byte) (bool, error) {
	query := `
		UPDATE inspections SET
			status = $2, locked_at = $3, content_hash = $4,
			canonical_json_blob = $5, canonical_json_sha256 = $4, updated_at = NOW()
		WHERE id = $1 AND status = $6 AND locked_at IS NULL`

	res, err := r.q.ExecContext(ctx, query,
		id, models.InspectionStatusSubmitted, lockedAt, contentHash, canonicalJSON,
		models.InspectionStatusDraft,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecordRoleSignature stamps the tenant or landlord signature timestamp once.
// Zero rows affected means the role already signed or the inspection is not in
// a signable status.
func (r *InspectionRepository) RecordRoleSignature(ctx context.Context, id uuid.UUID, role string, signedAt time.Time) (bool, error) {
	var column string
	switch role {
	case models.SignedByTenant:
		column = "tenant_signed_at"
	case models.SignedByLandlord:
		column = "landlord_signed_at"
	default:
		return false, fmt.Errorf("unknown signing role: %s", role)
	}

	query := fmt.Sprintf(`
		UPDATE inspections SET %s = $2, updated_at = NOW()
		WHERE id = $1 AND %s IS NULL AND status IN ($3, $4)`, column, column)

	res, err := r.q.ExecContext(ctx, query, id, signedAt,
		models.InspectionStatusSubmitted, models.InspectionStatusReviewed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkSigned flips a fully signed inspection to the signed terminal state and
// records the final signer
func (r *InspectionRepository) MarkSigned(ctx context.Context, id uuid.UUID, signedBy string, actorID *uuid.UUID, signedAt time.Time) (bool, error) {
	query := `
		UPDATE inspections SET
			status = $2, signed_by = $3, signed_actor_id = $4, signed_at = $5, updated_at = NOW()
		WHERE id = $1 AND status IN ($6, $7)`

	res, err := r.q.ExecContext(ctx, query,
		id, models.InspectionStatusSigned, signedBy, actorID, signedAt,
		models.InspectionStatusSubmitted, models.InspectionStatusReviewed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkAttested locks (if needed) and signs a booking-scoped inspection in one
// statement. Attestation may arrive before submit, in which case it supplies
// the hash computed inline; the WHERE clause rejects already-signed records.
func (r *InspectionRepository) MarkAttested(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, attestedAt time.Time, contentHash string, canonicalJSON []byte) (bool, error) {
	query := `
		UPDATE inspections SET
			status = $2, signed_by = $3, signed_actor_id = $4, signed_at = $5,
			locked_at = COALESCE(locked_at, $5),
			content_hash = COALESCE(content_hash, $6),
			canonical_json_blob = COALESCE(canonical_json_blob, $7),
			canonical_json_sha256 = COALESCE(canonical_json_sha256, $6),
			updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($8, $9)`

	res, err := r.q.ExecContext(ctx, query,
		id, models.InspectionStatusSigned, models.SignedByHostSystem, actorID,
		attestedAt, contentHash, canonicalJSON,
		models.InspectionStatusSigned, models.InspectionStatusArchived)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetCertificate stores the certificate artifact's path and hash once the
// generation job has produced it. Only fills empty columns so a re-run of the
// job can never replace an existing artifact reference.
func (r *InspectionRepository) SetCertificate(ctx context.Context, id uuid.UUID, path, sha256 string) (bool, error) {
	query := `
		UPDATE inspections SET certificate_path = $2, certificate_sha256 = $3, updated_at = NOW()
		WHERE id = $1 AND certificate_path IS NULL`

	res, err := r.q.ExecContext(ctx, query, id, path, sha256)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
