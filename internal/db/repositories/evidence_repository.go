// evidence_repository.go implements EvidenceRepository, providing database queries for
// confirmed evidence rows. The (item, idempotency key) unique constraint is the backstop
// that makes confirm safe to retry under concurrency.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/models"
)

// EvidenceRepository handles evidence database operations. It is constructed
// over an sqlx.ExtContext so the same repository runs against *sqlx.DB or
// *sqlx.Tx.
type EvidenceRepository struct {
	q sqlx.ExtContext
}

// NewEvidenceRepository creates a new EvidenceRepository
func NewEvidenceRepository(q sqlx.ExtContext) *EvidenceRepository {
	return &EvidenceRepository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *EvidenceRepository) WithTx(tx *sqlx.Tx) *EvidenceRepository {
	return &EvidenceRepository{q: tx}
}

// Create inserts a confirmed evidence row
func (r *EvidenceRepository) Create(ctx context.Context, ev *models.Evidence) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO inspection_evidence (
			id, inspection_item_id, object_path, mime_type, size_bytes,
			file_sha256_claimed, confirmed_at, evidence_source,
			storage_instance_kind, storage_instance_id, confirm_idempotency_key,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.q.ExecContext(ctx, query,
		ev.ID, ev.InspectionItemID, ev.ObjectPath, ev.MimeType, ev.SizeBytes,
		ev.FileSHA256Claimed, ev.ConfirmedAt, ev.EvidenceSource,
		ev.StorageInstanceKind, ev.StorageInstanceID, ev.ConfirmIdempotencyKey,
		ev.CreatedAt,
	)
	return err
}

// GetByID retrieves an evidence row by ID, or (nil, nil) if it does not exist
func (r *EvidenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	var ev models.Evidence
	query := `SELECT * FROM inspection_evidence WHERE id = $1`
	err := sqlx.GetContext(ctx, r.q, &ev, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetByIdempotencyKey finds a prior confirm for (item, key), or (nil, nil).
// A hit means the current confirm call is a replay and must return this row
// unchanged.
func (r *EvidenceRepository) GetByIdempotencyKey(ctx context.Context, itemID uuid.UUID, key string) (*models.Evidence, error) {
	var ev models.Evidence
	query := `
		SELECT * FROM inspection_evidence
		WHERE inspection_item_id = $1 AND confirm_idempotency_key = $2`
	err := sqlx.GetContext(ctx, r.q, &ev, query, itemID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListForItem returns evidence rows of one item in canonical order
func (r *EvidenceRepository) ListForItem(ctx context.Context, itemID uuid.UUID) ([]models.Evidence, error) {
	var list []models.Evidence
	query := `
		SELECT * FROM inspection_evidence
		WHERE inspection_item_id = $1
		ORDER BY confirmed_at, object_path`
	err := sqlx.SelectContext(ctx, r.q, &list, query, itemID)
	return list, err
}

// ListForInspection returns all evidence rows across an inspection's items
func (r *EvidenceRepository) ListForInspection(ctx context.Context, inspectionID uuid.UUID) ([]models.Evidence, error) {
	var list []models.Evidence
	query := `
		SELECT e.* FROM inspection_evidence e
		JOIN inspection_items i ON i.id = e.inspection_item_id
		WHERE i.inspection_id = $1
		ORDER BY e.confirmed_at, e.object_path`
	err := sqlx.SelectContext(ctx, r.q, &list, query, inspectionID)
	return list, err
}

// CountConfirmedForInspection returns the number of confirmed evidence rows
// across an inspection's items
func (r *EvidenceRepository) CountConfirmedForInspection(ctx context.Context, inspectionID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM inspection_evidence e
		JOIN inspection_items i ON i.id = e.inspection_item_id
		WHERE i.inspection_id = $1`
	err := sqlx.GetContext(ctx, r.q, &count, query, inspectionID)
	return count, err
}

// SetVerifiedHash fills in the independently verified hash exactly once.
// Zero rows affected means the field was already set and this run must not
// overwrite it.
func (r *EvidenceRepository) SetVerifiedHash(ctx context.Context, id uuid.UUID, verifiedSHA256 string) (bool, error) {
	query := `
		UPDATE inspection_evidence SET file_sha256_verified = $2
		WHERE id = $1 AND file_sha256_verified IS NULL`

	res, err := r.q.ExecContext(ctx, query, id, verifiedSHA256)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
