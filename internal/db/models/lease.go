// Package models - lease.go defines the narrow lease, tenant access, and booking
// records the service needs for scoping and authorization.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant invite statuses. Only ACCEPTED grants access.
const (
	InviteStatusInvited  = "INVITED"
	InviteStatusAccepted = "ACCEPTED"
	InviteStatusRevoked  = "REVOKED"
)

// Lease is the landlord-side container for lease-scoped inspections.
type Lease struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	OrgID              uuid.UUID `json:"org_id" db:"org_id"`
	UnitLabel          *string   `json:"unit_label,omitempty" db:"unit_label"`
	Status             string    `json:"status" db:"status"`
	DepositAmountCents *int64    `json:"deposit_amount_cents,omitempty" db:"deposit_amount_cents"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// TenantAccess links an external tenant identity to a lease.
type TenantAccess struct {
	ID           uuid.UUID `json:"id" db:"id"`
	LeaseID      uuid.UUID `json:"lease_id" db:"lease_id"`
	TenantUserID uuid.UUID `json:"tenant_user_id" db:"tenant_user_id"`
	Role         string    `json:"role" db:"role"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Booking is the short-term-rental container for booking-scoped inspections.
// Guests never authenticate; only org members act on bookings.
type Booking struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	OrgID        uuid.UUID  `json:"org_id" db:"org_id"`
	UnitLabel    *string    `json:"unit_label,omitempty" db:"unit_label"`
	GuestName    *string    `json:"guest_name,omitempty" db:"guest_name"`
	CheckInDate  *time.Time `json:"check_in_date,omitempty" db:"check_in_date"`
	CheckOutDate *time.Time `json:"check_out_date,omitempty" db:"check_out_date"`
	Status       string     `json:"status" db:"status"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
