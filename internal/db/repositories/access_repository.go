// access_repository.go implements AccessRepository, the narrow read surface over
// leases, bookings, and tenant access grants that the lifecycle uses for its
// authorization checks.
package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/db/models"
)

// AccessRepository handles lease, booking, and tenant access database operations
type AccessRepository struct {
	db *sqlx.DB
}

// NewAccessRepository creates a new AccessRepository
func NewAccessRepository(db *sqlx.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// GetLease retrieves a lease by ID, or (nil, nil) if it does not exist
func (r *AccessRepository) GetLease(ctx context.Context, id uuid.UUID) (*models.Lease, error) {
	var lease models.Lease
	query := `SELECT * FROM leases WHERE id = $1`
	err := r.db.GetContext(ctx, &lease, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

// GetBooking retrieves a booking by ID, or (nil, nil) if it does not exist
func (r *AccessRepository) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT * FROM bookings WHERE id = $1`
	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// TenantHasLeaseAccess reports whether the user holds an accepted tenant
// access grant on the lease. Invited or revoked grants do not count.
func (r *AccessRepository) TenantHasLeaseAccess(ctx context.Context, leaseID, tenantUserID uuid.UUID) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM tenant_access
		WHERE lease_id = $1 AND tenant_user_id = $2 AND status = $3`
	err := r.db.GetContext(ctx, &count, query, leaseID, tenantUserID, models.InviteStatusAccepted)
	return count > 0, err
}

// ListLeaseTenants lists the access grants on a lease
func (r *AccessRepository) ListLeaseTenants(ctx context.Context, leaseID uuid.UUID) ([]models.TenantAccess, error) {
	var grants []models.TenantAccess
	query := `SELECT * FROM tenant_access WHERE lease_id = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &grants, query, leaseID)
	return grants, err
}
