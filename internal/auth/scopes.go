// Package auth - scopes.go defines permission scope constants for integration
// API keys and provides HasScope, HasAnyScope, and HasAllScopes helper
// functions for scope checking. Interactive callers are authorized by role
// instead; scopes apply only to machine credentials.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Inspection scopes
	ScopeInspectionsRead  Scope = "inspections:read"
	ScopeInspectionsWrite Scope = "inspections:write"

	// Evidence scopes
	ScopeEvidenceRead  Scope = "evidence:read"
	ScopeEvidenceWrite Scope = "evidence:write"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeInspectionsRead,
		ScopeInspectionsWrite,
		ScopeEvidenceRead,
		ScopeEvidenceWrite,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a credential has a required scope
// Supports wildcard admin scope
func HasScope(keyScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range keyScopes {
		// Check for exact match
		if scope == requiredStr {
			return true
		}

		// Check for admin wildcard
		if scope == string(ScopeAdmin) {
			return true
		}

		// Write permission also grants the matching read permission
		if required == ScopeInspectionsRead && scope == string(ScopeInspectionsWrite) {
			return true
		}
		if required == ScopeEvidenceRead && scope == string(ScopeEvidenceWrite) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a credential has at least one of the required scopes
func HasAnyScope(keyScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(keyScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a credential has all of the required scopes
func HasAllScopes(keyScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(keyScopes, required) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns default scopes for a new API key
func GetDefaultScopes() []string {
	return []string{
		string(ScopeInspectionsRead),
		string(ScopeEvidenceRead),
	}
}

// GetAdminScopes returns all scopes including admin
func GetAdminScopes() []string {
	scopes := make([]string, 0)
	for _, scope := range AllScopes() {
		scopes = append(scopes, string(scope))
	}
	return scopes
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
