// Package api wires together all HTTP routes for the properties backend.
//
// Route grouping philosophy:
//   - Health and readiness probes are unauthenticated so orchestration can
//     reach them before any credential exists.
//   - Everything under /api/v1 requires a bearer credential and the
//     appropriate scope. Coarse scope checks happen here; per-resource
//     authorization (which lease, which org) happens in the service layer.
//   - The /api/v1/files routes exist only when the local storage provider is
//     active: they are the PUT/GET targets of its "presigned" URLs. Cloud
//     providers presign against the cloud endpoint and never hit them.
package api

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/api/auditlog"
	"github.com/proveniq/properties-backend/internal/api/files"
	"github.com/proveniq/properties-backend/internal/api/inspections"
	"github.com/proveniq/properties-backend/internal/audit"
	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/config"
	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/inspection"
	"github.com/proveniq/properties-backend/internal/jobs"
	"github.com/proveniq/properties-backend/internal/middleware"
	"github.com/proveniq/properties-backend/internal/storage"

	// Import storage providers to register them
	_ "github.com/proveniq/properties-backend/internal/storage/azure"
	_ "github.com/proveniq/properties-backend/internal/storage/gcs"
	_ "github.com/proveniq/properties-backend/internal/storage/local"
	_ "github.com/proveniq/properties-backend/internal/storage/s3"
)

// BackgroundServices holds references to background goroutines and resources
// that must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	worker       *jobs.Worker
	shipper      audit.Shipper
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests are drained
// first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.worker != nil {
		bg.worker.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("audit shipper close failed", "error", err)
		}
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize storage provider
	store, err := storage.NewProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage provider: %v", err)
	}
	log.Printf("Initialized storage provider: %s", cfg.Storage.DefaultProvider)

	// Initialize audit shipping (best-effort secondary copy; the DB row is
	// the authoritative trail)
	shipper := buildAuditShipper(cfg)

	// Initialize the inspection service
	svc := inspection.NewService(db, store, shipper, cfg, slog.Default())

	// Initialize the outbox worker when configured to run in-process
	var worker *jobs.Worker
	if cfg.Jobs.Enabled {
		worker = jobs.NewWorker(db, &cfg.Jobs, slog.Default())
		worker.Register(models.JobTypeVerifyHash,
			jobs.NewHashVerifier(db, store, slog.Default()).Handle)
		worker.Register(models.JobTypeGenerateCertificate,
			jobs.NewCertificateGenerator(db, store, slog.Default()).Handle)
		worker.Start(context.Background())
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/healthz", healthCheckHandler(db))

	// Readiness check endpoint (includes storage provider probe)
	router.GET("/readyz", readinessHandler(db, store))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	inspectionHandlers := inspections.NewHandlers(svc)
	auditHandlers := auditlog.NewHandlers(db)

	// Initialize rate limiters
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	uploadRateLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())

	// Direct file routes for the local provider. These stand in for the
	// provider's presigned URLs, so like real presigned URLs they carry no
	// bearer auth.
	if cfg.Storage.DefaultProvider == "local" {
		fileHandlers := files.NewHandlers(store)
		router.GET("/api/v1/files/*filepath", fileHandlers.Serve())
		router.PUT("/api/v1/files/*filepath",
			middleware.RateLimitMiddleware(uploadRateLimiter), fileHandlers.Accept())
	}

	// Authenticated API endpoints
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(cfg))
	apiV1.Use(middleware.RateLimitMiddleware(generalRateLimiter))
	{
		// Inspection lifecycle
		apiV1.POST("/inspections",
			middleware.RequireScope(auth.ScopeInspectionsWrite),
			inspectionHandlers.Create())
		apiV1.GET("/inspections",
			middleware.RequireScope(auth.ScopeInspectionsRead),
			inspectionHandlers.List())
		apiV1.GET("/inspections/:id",
			middleware.RequireScope(auth.ScopeInspectionsRead),
			inspectionHandlers.Get())
		apiV1.POST("/inspections/:id/items",
			middleware.RequireScope(auth.ScopeInspectionsWrite),
			inspectionHandlers.UpsertItem())
		apiV1.GET("/inspections/:id/items",
			middleware.RequireScope(auth.ScopeInspectionsRead),
			inspectionHandlers.ListItems())

		// Evidence gateway (stricter rate limit: these gate object storage)
		apiV1.POST("/inspections/:id/evidence/presign",
			middleware.RateLimitMiddleware(uploadRateLimiter),
			middleware.RequireScope(auth.ScopeEvidenceWrite),
			inspectionHandlers.PresignEvidence())
		apiV1.POST("/inspections/:id/evidence/confirm",
			middleware.RateLimitMiddleware(uploadRateLimiter),
			middleware.RequireScope(auth.ScopeEvidenceWrite),
			inspectionHandlers.ConfirmEvidence())

		// Transitions
		apiV1.POST("/inspections/:id/submit",
			middleware.RequireScope(auth.ScopeInspectionsWrite),
			inspectionHandlers.Submit())
		apiV1.POST("/inspections/:id/sign",
			middleware.RequireScope(auth.ScopeInspectionsWrite),
			inspectionHandlers.Sign())
		apiV1.POST("/inspections/:id/attest",
			middleware.RequireScope(auth.ScopeInspectionsWrite),
			inspectionHandlers.Attest())

		// Reports
		apiV1.GET("/inspections/:id/certificate",
			middleware.RequireScope(auth.ScopeInspectionsRead),
			inspectionHandlers.Certificate())
		apiV1.GET("/leases/:lease_id/inspection-diff",
			middleware.RequireScope(auth.ScopeInspectionsRead),
			inspectionHandlers.Diff())

		// Audit trail (org members only)
		auditGroup := apiV1.Group("/audit")
		auditGroup.Use(middleware.RequireOrgMember())
		auditGroup.Use(middleware.RequireScope(auth.ScopeAuditRead))
		{
			auditGroup.GET("", auditHandlers.List())
			auditGroup.GET("/:id", auditHandlers.Get())
		}
	}

	bg := &BackgroundServices{
		worker:       worker,
		shipper:      shipper,
		rateLimiters: []*middleware.RateLimiter{generalRateLimiter, uploadRateLimiter},
	}

	return router, bg
}

// buildAuditShipper assembles the configured audit shipping destinations.
// Returns nil when shipping is disabled; the service treats a nil shipper as
// a no-op.
func buildAuditShipper(cfg *config.Config) audit.Shipper {
	if !cfg.Audit.Enabled || len(cfg.Audit.Shippers) == 0 {
		return nil
	}

	shipperConfigs := make([]audit.ShipperConfig, 0, len(cfg.Audit.Shippers))
	for _, sc := range cfg.Audit.Shippers {
		out := audit.ShipperConfig{Enabled: sc.Enabled, Type: sc.Type}
		if sc.Webhook != nil {
			out.Webhook = &audit.WebhookConfig{
				URL:     sc.Webhook.URL,
				Headers: sc.Webhook.Headers,
				Timeout: time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
			}
		}
		if sc.File != nil {
			out.File = &audit.FileConfig{Path: sc.File.Path}
		}
		shipperConfigs = append(shipperConfigs, out)
	}

	ms, err := audit.NewMultiShipper(shipperConfigs)
	if err != nil {
		log.Printf("audit shipping disabled: %v", err)
		return nil
	}
	return ms
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /healthz [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and storage provider connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: dependency not ready"
// @Router       /readyz [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/healthz), this also checks the storage provider
// so that a Kubernetes readiness gate fails when presign/confirm would error.
func readinessHandler(db *sqlx.DB, store storage.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Check storage provider — Stat against a known-absent sentinel path.
		// This exercises authentication and network connectivity without
		// creating any state; (nil, nil) on absence is the expected result.
		if _, err := store.Stat(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage provider not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
