package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/config"
)

// newAuthRouter wires AuthMiddleware in front of a handler that echoes the
// resolved actor so tests can assert on what landed in the context.
func newAuthRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", AuthMiddleware(cfg), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no actor"})
			return
		}
		method, _ := c.Get("auth_method")
		c.JSON(http.StatusOK, gin.H{
			"user_id":     actor.UserID.String(),
			"role":        actor.Role,
			"auth_method": method,
		})
	})
	return r
}

func doAuth(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func emptyConfig() *config.Config {
	return &config.Config{}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	w := doAuth(newAuthRouter(emptyConfig()), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_NonBearerPrefix(t *testing.T) {
	w := doAuth(newAuthRouter(emptyConfig()), "Basic dXNlcjpwYXNz")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_EmptyToken(t *testing.T) {
	w := doAuth(newAuthRouter(emptyConfig()), "Bearer   ")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_GarbageToken(t *testing.T) {
	w := doAuth(newAuthRouter(emptyConfig()), "Bearer not.a.token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_ValidJWT_Landlord(t *testing.T) {
	userID := uuid.New().String()
	orgID := uuid.New().String()
	token, err := auth.GenerateJWT(userID, orgID, auth.RoleLandlord, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	r := gin.New()
	r.GET("/", AuthMiddleware(emptyConfig()), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			t.Error("actor missing from context")
		}
		if actor.UserID.String() != userID {
			t.Errorf("actor.UserID = %s, want %s", actor.UserID, userID)
		}
		if actor.OrgID == nil || actor.OrgID.String() != orgID {
			t.Errorf("actor.OrgID = %v, want %s", actor.OrgID, orgID)
		}
		scopesVal, _ := c.Get("scopes")
		scopes, _ := scopesVal.([]string)
		if !auth.HasScope(scopes, auth.ScopeAuditRead) {
			t.Error("landlord JWT should carry audit:read")
		}
		c.Status(http.StatusOK)
	})

	w := doAuth(r, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_ValidJWT_TenantScopes(t *testing.T) {
	token, err := auth.GenerateJWT(uuid.New().String(), "", auth.RoleTenant, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	r := gin.New()
	r.GET("/", AuthMiddleware(emptyConfig()), func(c *gin.Context) {
		scopesVal, _ := c.Get("scopes")
		scopes, _ := scopesVal.([]string)
		if !auth.HasScope(scopes, auth.ScopeInspectionsWrite) {
			t.Error("tenant JWT should carry inspections:write")
		}
		if auth.HasScope(scopes, auth.ScopeAuditRead) {
			t.Error("tenant JWT must not carry audit:read")
		}
		c.Status(http.StatusOK)
	})

	w := doAuth(r, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_JWT_UnknownRoleRejected(t *testing.T) {
	token, err := auth.GenerateJWT(uuid.New().String(), "", "SUPERUSER", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	w := doAuth(newAuthRouter(emptyConfig()), "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Integration API keys
// ---------------------------------------------------------------------------

func integrationConfig(t *testing.T, rawKey string, scopes []string) (*config.Config, string, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	orgID := uuid.New().String()
	serviceUserID := uuid.New().String()
	cfg := &config.Config{}
	cfg.Security.IntegrationKeys = []config.IntegrationKeyConfig{{
		Name:          "pms-sync",
		Prefix:        rawKey[:4],
		KeyHash:       string(hash),
		OrgID:         orgID,
		ServiceUserID: serviceUserID,
		Scopes:        scopes,
	}}
	return cfg, orgID, serviceUserID
}

func TestAuthMiddleware_IntegrationKey_Valid(t *testing.T) {
	rawKey := "pvq_integration_key_for_tests"
	cfg, orgID, serviceUserID := integrationConfig(t, rawKey, []string{"inspections:write", "evidence:write"})

	r := gin.New()
	r.GET("/", AuthMiddleware(cfg), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			t.Fatal("actor missing from context")
		}
		if actor.UserID.String() != serviceUserID {
			t.Errorf("actor.UserID = %s, want %s", actor.UserID, serviceUserID)
		}
		if actor.OrgID == nil || actor.OrgID.String() != orgID {
			t.Errorf("actor.OrgID = %v, want %s", actor.OrgID, orgID)
		}
		if !actor.IsOrgMember() {
			t.Error("integration key actor should be an org member")
		}
		method, _ := c.Get("auth_method")
		if method != "api_key" {
			t.Errorf("auth_method = %v, want api_key", method)
		}
		name, _ := c.Get("integration_name")
		if name != "pms-sync" {
			t.Errorf("integration_name = %v, want pms-sync", name)
		}
		c.Status(http.StatusOK)
	})

	w := doAuth(r, "Bearer "+rawKey)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_IntegrationKey_WrongKey(t *testing.T) {
	cfg, _, _ := integrationConfig(t, "pvq_integration_key_for_tests", nil)
	w := doAuth(newAuthRouter(cfg), "Bearer pvq_some_other_key_entirely")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_IntegrationKey_PrefixMismatch(t *testing.T) {
	cfg, _, _ := integrationConfig(t, "pvq_integration_key_for_tests", nil)
	// Token with a non-matching prefix never reaches the bcrypt comparison.
	w := doAuth(newAuthRouter(cfg), "Bearer zzz_integration_key_for_tests")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_IntegrationKey_BadServiceUserID(t *testing.T) {
	rawKey := "pvq_integration_key_for_tests"
	cfg, _, _ := integrationConfig(t, rawKey, nil)
	cfg.Security.IntegrationKeys[0].ServiceUserID = "not-a-uuid"

	w := doAuth(newAuthRouter(cfg), "Bearer "+rawKey)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthenticateIntegrationKey_NoKeysConfigured(t *testing.T) {
	actor, key := authenticateIntegrationKey("pvq_whatever", nil)
	if actor != nil || key != nil {
		t.Errorf("expected no match, got actor=%v key=%v", actor, key)
	}
}
