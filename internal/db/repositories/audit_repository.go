// audit_repository.go implements AuditRepository, the append-only audit trail.
// Record rides the caller's transaction so an audit entry and the state change
// it describes are always consistent; there is no update or delete path.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying the audit trail
type AuditFilters struct {
	OrgID        *uuid.UUID
	UserID       *uuid.UUID
	Action       *string
	ResourceType *string
	ResourceID   *uuid.UUID
	StartDate    *time.Time
	EndDate      *time.Time
}

// Record appends one audit entry. It runs against the supplied ExtContext so
// lifecycle transitions write their entry inside the same transaction as the
// state change.
func (r *AuditRepository) Record(ctx context.Context, q sqlx.ExtContext, entry *models.AuditEntry) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()

	var detailsJSON []byte
	var err error
	if entry.Details != nil {
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_log (
			id, org_id, user_id, action, resource_type, resource_id,
			details, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = q.ExecContext(ctx, query,
		entry.ID, entry.OrgID, entry.UserID, entry.Action,
		entry.ResourceType, entry.ResourceID, detailsJSON,
		entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	)
	return err
}

// List retrieves audit entries with optional filters and pagination, newest
// first, plus the unpaginated total
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditEntry, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_log WHERE 1=1`
	query := `
		SELECT id, org_id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
		FROM audit_log
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	addFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, value)
		paramIndex++
	}

	if filters.OrgID != nil {
		addFilter(` AND org_id = $%d`, *filters.OrgID)
	}
	if filters.UserID != nil {
		addFilter(` AND user_id = $%d`, *filters.UserID)
	}
	if filters.Action != nil {
		addFilter(` AND action = $%d`, *filters.Action)
	}
	if filters.ResourceType != nil {
		addFilter(` AND resource_type = $%d`, *filters.ResourceType)
	}
	if filters.ResourceID != nil {
		addFilter(` AND resource_id = $%d`, *filters.ResourceID)
	}
	if filters.StartDate != nil {
		addFilter(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter(` AND created_at <= $%d`, *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0)
	for rows.Next() {
		entry := &models.AuditEntry{}
		var detailsJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.OrgID,
			&entry.UserID,
			&entry.Action,
			&entry.ResourceType,
			&entry.ResourceID,
			&detailsJSON,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}

		if detailsJSON != nil {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, 0, err
			}
		}

		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}

// Get retrieves a single audit entry by ID, or (nil, nil) if it does not exist
func (r *AuditRepository) Get(ctx context.Context, id uuid.UUID) (*models.AuditEntry, error) {
	query := `
		SELECT id, org_id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
		FROM audit_log
		WHERE id = $1
	`

	entry := &models.AuditEntry{}
	var detailsJSON []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID,
		&entry.OrgID,
		&entry.UserID,
		&entry.Action,
		&entry.ResourceType,
		&entry.ResourceID,
		&detailsJSON,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if detailsJSON != nil {
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return nil, err
		}
	}

	return entry, nil
}
