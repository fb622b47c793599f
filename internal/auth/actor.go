// Package auth - actor.go defines the caller identity the middleware resolves
// from a verified token. The rest of the service treats it as opaque input to
// authorization checks; no handler ever inspects the raw token.
package auth

import "github.com/google/uuid"

// Actor roles. Tenant actors act through tenant access grants; landlord actors
// act through org membership.
const (
	RoleTenant   = "TENANT"
	RoleLandlord = "LANDLORD_ORG_MEMBER"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	// OrgID is set for landlord org members and nil for tenants.
	OrgID *uuid.UUID
	Role  string
}

// IsTenant reports whether the actor is a tenant-side caller.
func (a Actor) IsTenant() bool {
	return a.Role == RoleTenant
}

// IsOrgMember reports whether the actor is a landlord-side org member.
func (a Actor) IsOrgMember() bool {
	return a.Role == RoleLandlord && a.OrgID != nil
}
