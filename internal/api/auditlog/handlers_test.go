package auditlog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/db/models"
	"github.com/proveniq/properties-backend/internal/middleware"
)

var auditCols = []string{
	"id", "org_id", "user_id", "action", "resource_type", "resource_id",
	"details", "ip_address", "user_agent", "created_at",
}

func newTestRouter(t *testing.T, actor *auth.Actor) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewHandlers(sqlx.NewDb(db, "sqlmock"))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if actor != nil {
			c.Set(middleware.ActorContextKey, *actor)
		}
		c.Next()
	})
	router.GET("/api/v1/audit", h.List())
	router.GET("/api/v1/audit/:id", h.Get())
	return router, mock
}

func doRequest(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestList_RequiresOrgActor(t *testing.T) {
	tenant := auth.Actor{UserID: uuid.New(), Role: auth.RoleTenant}
	router, _ := newTestRouter(t, &tenant)

	w := doRequest(router, "/api/v1/audit")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestList_ScopesToActorOrg(t *testing.T) {
	orgID := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), OrgID: &orgID, Role: auth.RoleLandlord}
	router, mock := newTestRouter(t, &actor)

	entryID := uuid.New()
	now := time.Now()

	// The org filter always binds to the actor's org, never a query param.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_log").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, org_id, user_id, action").
		WithArgs(orgID, 20, 0).
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow(entryID, orgID, nil, models.AuditActionInspectionSubmitted,
				"inspection", uuid.New(), []byte(`{"content_hash":"abc"}`), nil, nil, now))

	w := doRequest(router, "/api/v1/audit")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Entries    []models.AuditEntry    `json:"entries"`
		Pagination map[string]interface{} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(body.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(body.Entries))
	}
	if body.Entries[0].Action != models.AuditActionInspectionSubmitted {
		t.Errorf("unexpected action %q", body.Entries[0].Action)
	}
	if got := body.Pagination["total"]; got != float64(1) {
		t.Errorf("expected total 1, got %v", got)
	}
}

func TestList_AppliesFilters(t *testing.T) {
	orgID := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), OrgID: &orgID, Role: auth.RoleLandlord}
	router, mock := newTestRouter(t, &actor)

	action := models.AuditActionIntegrityDiscrepancy

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_log").
		WithArgs(orgID, action).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id, org_id, user_id, action").
		WithArgs(orgID, action, 20, 0).
		WillReturnRows(sqlmock.NewRows(auditCols))

	w := doRequest(router, "/api/v1/audit?action="+action)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestList_InvalidResourceID(t *testing.T) {
	orgID := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), OrgID: &orgID, Role: auth.RoleLandlord}
	router, _ := newTestRouter(t, &actor)

	w := doRequest(router, "/api/v1/audit?resource_id=nope")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGet_ForeignOrgEntryIsNotFound(t *testing.T) {
	orgID := uuid.New()
	otherOrg := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), OrgID: &orgID, Role: auth.RoleLandlord}
	router, mock := newTestRouter(t, &actor)

	entryID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, org_id, user_id, action").
		WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow(entryID, otherOrg, nil, models.AuditActionInspectionSigned,
				"inspection", uuid.New(), nil, nil, nil, now))

	w := doRequest(router, "/api/v1/audit/"+entryID.String())
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGet_ReturnsOwnOrgEntry(t *testing.T) {
	orgID := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), OrgID: &orgID, Role: auth.RoleLandlord}
	router, mock := newTestRouter(t, &actor)

	entryID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, org_id, user_id, action").
		WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow(entryID, orgID, nil, models.AuditActionCertificateGenerated,
				"inspection", uuid.New(), []byte(`{"certificate_path":"p"}`), nil, nil, now))

	w := doRequest(router, "/api/v1/audit/"+entryID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var entry models.AuditEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if entry.ID != entryID {
		t.Errorf("expected entry %s, got %s", entryID, entry.ID)
	}
	if entry.Details["certificate_path"] != "p" {
		t.Errorf("details not decoded: %v", entry.Details)
	}
}
