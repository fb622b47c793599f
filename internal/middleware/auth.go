// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and request tracking.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Scopes → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any
// crypto work. Auth populates the actor identity and scopes; scope checks read
// from that context. Per-resource authorization (which lease, which org) is
// the service layer's job and happens inside the same transaction as the
// state change, never here.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/config"
)

// ActorContextKey is the gin.Context key holding the authenticated auth.Actor.
const ActorContextKey = "actor"

// tenantScopes are granted to interactive tenant callers. The service layer
// still checks per-lease access grants on every call.
var tenantScopes = []string{
	string(auth.ScopeInspectionsRead),
	string(auth.ScopeInspectionsWrite),
	string(auth.ScopeEvidenceRead),
	string(auth.ScopeEvidenceWrite),
}

// AuthMiddleware validates authentication (JWT or integration API key) and
// stores the resolved auth.Actor plus its scopes in the request context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		// JWT validation is attempted first because it is entirely stateless:
		// a cryptographic check against the JWT secret with no bcrypt work.
		// Integration keys always cost a bcrypt comparison, so JWT is the
		// lower-latency path for interactive sessions.
		if claims, err := auth.ValidateJWT(token); err == nil {
			actor, err := claims.Actor()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid token claims",
				})
				return
			}

			c.Set(ActorContextKey, *actor)
			c.Set("auth_method", "jwt")
			if actor.IsOrgMember() {
				c.Set("scopes", auth.GetAdminScopes())
			} else {
				c.Set("scopes", tenantScopes)
			}
			c.Next()
			return
		}

		// Try integration API keys. The raw key is never stored; the
		// plaintext prefix narrows candidates so bcrypt runs against at most
		// a handful of configured hashes.
		if actor, key := authenticateIntegrationKey(token, cfg.Security.IntegrationKeys); key != nil {
			c.Set(ActorContextKey, *actor)
			c.Set("auth_method", "api_key")
			c.Set("integration_name", key.Name)
			c.Set("scopes", key.Scopes)
			c.Next()
			return
		}

		// Neither JWT nor API key worked
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid credentials",
		})
	}
}

// authenticateIntegrationKey matches the provided key against the configured
// integration credentials. Returns the resolved actor and the matched config,
// or (nil, nil) when nothing matches.
func authenticateIntegrationKey(providedKey string, keys []config.IntegrationKeyConfig) (*auth.Actor, *config.IntegrationKeyConfig) {
	for i := range keys {
		key := &keys[i]
		if key.Prefix != "" && !strings.HasPrefix(providedKey, key.Prefix) {
			continue
		}
		if !auth.ValidateAPIKey(providedKey, key.KeyHash) {
			continue
		}

		userID, err := uuid.Parse(key.ServiceUserID)
		if err != nil {
			continue
		}
		orgID, err := uuid.Parse(key.OrgID)
		if err != nil {
			continue
		}
		return &auth.Actor{UserID: userID, OrgID: &orgID, Role: auth.RoleLandlord}, key
	}
	return nil, nil
}

// ActorFromContext retrieves the authenticated actor stored by AuthMiddleware.
func ActorFromContext(c *gin.Context) (auth.Actor, bool) {
	val, ok := c.Get(ActorContextKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := val.(auth.Actor)
	return actor, ok
}
