package auth

import (
	"os"
	"sync"
	"testing"
	"time"
)

// resetJWTSecret resets the package-level sync.Once so tests can set a fresh secret.
// This is only safe to call from test code.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	// Set a known test secret before any test runs.
	// The sync.Once will capture this value on first call to ValidateJWTSecret.
	os.Setenv("PVQ_JWT_SECRET", "test-jwt-secret-that-is-32-chars-!")
	os.Exit(m.Run())
}

func TestValidateJWTSecret(t *testing.T) {
	t.Run("valid secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv("PVQ_JWT_SECRET", "exactly-32-char-secret-for-test!!")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
	})

	t.Run("production mode requires secret", func(t *testing.T) {
		resetJWTSecret()
		// Unset all dev-mode indicators and the secret itself
		t.Setenv("PVQ_JWT_SECRET", "")
		t.Setenv("DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("ValidateJWTSecret() expected error in production mode without secret, got nil")
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv("PVQ_JWT_SECRET", "")
		t.Setenv("DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error in dev mode: %v", err)
		}
		if GetJWTSecret() == "" {
			t.Error("GetJWTSecret() returned empty string after dev mode init")
		}
	})
}

func TestGenerateAndValidateJWT(t *testing.T) {
	resetJWTSecret()
	t.Setenv("PVQ_JWT_SECRET", "test-jwt-secret-that-is-32-chars-!")

	t.Run("round trip", func(t *testing.T) {
		userID := "5f1b3c1e-9c7d-4a57-9a44-1f0d2f2ab101"
		orgID := "0b8c9b44-21be-4f1d-a9c3-7a6f5f6de202"

		token, err := GenerateJWT(userID, orgID, RoleLandlord, time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		if token == "" {
			t.Fatal("GenerateJWT() returned empty token")
		}

		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		if claims.UserID != userID {
			t.Errorf("claims.UserID = %q, want %q", claims.UserID, userID)
		}
		if claims.OrgID != orgID {
			t.Errorf("claims.OrgID = %q, want %q", claims.OrgID, orgID)
		}
		if claims.Role != RoleLandlord {
			t.Errorf("claims.Role = %q, want %q", claims.Role, RoleLandlord)
		}
		if claims.Issuer != "properties-backend" {
			t.Errorf("claims.Issuer = %q, want %q", claims.Issuer, "properties-backend")
		}

		actor, err := claims.Actor()
		if err != nil {
			t.Fatalf("claims.Actor() error: %v", err)
		}
		if actor.UserID.String() != userID {
			t.Errorf("actor.UserID = %q, want %q", actor.UserID, userID)
		}
		if actor.OrgID == nil || actor.OrgID.String() != orgID {
			t.Errorf("actor.OrgID = %v, want %q", actor.OrgID, orgID)
		}
		if !actor.IsOrgMember() {
			t.Error("actor.IsOrgMember() = false, want true")
		}
	})

	t.Run("default expiry when zero duration", func(t *testing.T) {
		token, err := GenerateJWT("5f1b3c1e-9c7d-4a57-9a44-1f0d2f2ab101", "", RoleTenant, 0)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		// Should expire roughly 1 hour from now
		remaining := time.Until(claims.ExpiresAt.Time)
		if remaining < 50*time.Minute || remaining > 70*time.Minute {
			t.Errorf("default expiry remaining = %v, want ~1h", remaining)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := GenerateJWT("5f1b3c1e-9c7d-4a57-9a44-1f0d2f2ab101", "", RoleTenant, -time.Second)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		_, err = ValidateJWT(token)
		if err == nil {
			t.Error("ValidateJWT() expected error for expired token, got nil")
		}
	})

	t.Run("invalid token string", func(t *testing.T) {
		_, err := ValidateJWT("not.a.valid.token")
		if err == nil {
			t.Error("ValidateJWT() expected error for garbage token, got nil")
		}
	})

	t.Run("empty token string", func(t *testing.T) {
		_, err := ValidateJWT("")
		if err == nil {
			t.Error("ValidateJWT() expected error for empty token, got nil")
		}
	})

	t.Run("token signed with different secret is rejected", func(t *testing.T) {
		// Generate with current secret
		token, err := GenerateJWT("5f1b3c1e-9c7d-4a57-9a44-1f0d2f2ab101", "", RoleTenant, time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		// Reset and use a different secret
		resetJWTSecret()
		t.Setenv("PVQ_JWT_SECRET", "completely-different-secret-32ch!")

		_, err = ValidateJWT(token)
		if err == nil {
			t.Error("ValidateJWT() expected error for token signed with different secret, got nil")
		}

		// Restore for remaining tests
		resetJWTSecret()
		t.Setenv("PVQ_JWT_SECRET", "test-jwt-secret-that-is-32-chars-!")
	})
}

func TestClaimsActor_Invalid(t *testing.T) {
	t.Run("bad user id", func(t *testing.T) {
		c := &Claims{UserID: "not-a-uuid", Role: RoleTenant}
		if _, err := c.Actor(); err == nil {
			t.Error("Actor() expected error for malformed user_id, got nil")
		}
	})

	t.Run("bad org id", func(t *testing.T) {
		c := &Claims{UserID: "5f1b3c1e-9c7d-4a57-9a44-1f0d2f2ab101", OrgID: "nope", Role: RoleLandlord}
		if _, err := c.Actor(); err == nil {
			t.Error("Actor() expected error for malformed org_id, got nil")
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		c := &Claims{UserID: "5f1b3c1e-9c7d-4a57-9a44-1f0d2f2ab101", Role: "ADMIN"}
		if _, err := c.Actor(); err == nil {
			t.Error("Actor() expected error for unknown role, got nil")
		}
	})
}
