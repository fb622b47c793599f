package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/config"
	"github.com/proveniq/properties-backend/internal/storage"
)

// stubStore answers Stat with a configurable error and rejects everything
// else; the readiness probe only ever calls Stat.
type stubStore struct {
	statErr error
}

func (s *stubStore) PresignUpload(context.Context, string, string, int64, time.Duration) (*storage.PresignedUpload, error) {
	return nil, nil
}
func (s *stubStore) PresignDownload(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (s *stubStore) Stat(context.Context, string) (*storage.ObjectInfo, error) {
	return nil, s.statErr
}
func (s *stubStore) Upload(context.Context, string, io.Reader, string) (*storage.ObjectInfo, error) {
	return nil, nil
}
func (s *stubStore) Download(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (s *stubStore) Delete(context.Context, string) error                    { return nil }

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func doGet(handler gin.HandlerFunc, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET(path, handler)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- health check -----------------------------------------------------------

func TestHealthCheckHandler_Healthy(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing()

	w := doGet(healthCheckHandler(db), "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHealthCheckHandler_DatabaseDown(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

	w := doGet(healthCheckHandler(db), "/healthz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// --- readiness --------------------------------------------------------------

func TestReadinessHandler_Ready(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing()

	w := doGet(readinessHandler(db, &stubStore{}), "/readyz")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReadinessHandler_StorageDown(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing()

	store := &stubStore{statErr: io.ErrUnexpectedEOF}
	w := doGet(readinessHandler(db, store), "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// --- version ----------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	w := doGet(versionHandler(), "/version")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body == "" {
		t.Error("expected version payload, got empty body")
	}
}

// --- CORS -------------------------------------------------------------------

func corsConfig(origins ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = origins
	return cfg
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware(corsConfig("https://app.example.com")))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware(corsConfig("https://app.example.com")))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers for disallowed origin, got %q", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("request itself should still be served, got %d", w.Code)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware(corsConfig("*")))
	router.POST("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}
}

// --- audit shipper wiring ---------------------------------------------------

func TestBuildAuditShipper_DisabledReturnsNil(t *testing.T) {
	cfg := &config.Config{}
	if s := buildAuditShipper(cfg); s != nil {
		t.Error("expected nil shipper when audit shipping is disabled")
	}
}

func TestBuildAuditShipper_FileShipper(t *testing.T) {
	cfg := &config.Config{}
	cfg.Audit.Enabled = true
	cfg.Audit.Shippers = []config.AuditShipperConfig{
		{
			Enabled: true,
			Type:    "file",
			File:    &config.AuditFileConfig{Path: t.TempDir() + "/audit.log"},
		},
	}

	s := buildAuditShipper(cfg)
	if s == nil {
		t.Fatal("expected a shipper")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
