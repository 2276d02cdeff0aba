package leaderboard

import (
	"database/sql/driver"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var boardColumns = []string{
	"user_id", "username", "avatar_url", "current_streak", "longest_streak", "total_valid_days",
}

func boardRow(userID, username string, current, longest, total int) []driver.Value {
	return []driver.Value{userID, username, nil, current, longest, total}
}

// newBoardRig builds the leaderboard route with stubbed tenant and session
// context. orgID and userID empty mean base domain and anonymous caller.
func newBoardRig(t *testing.T, orgID, userID string, platformAdmin bool) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sdb := sqlx.NewDb(db, "sqlmock")
	handlers := NewHandlers(
		repositories.NewLeaderboardRepository(sdb),
		repositories.NewOrganizationRepository(sdb),
	)

	r := gin.New()
	r.GET("/api/v1/leaderboard", func(c *gin.Context) {
		if orgID != "" {
			c.Set(middleware.ContextOrgID, orgID)
		}
		if userID != "" {
			c.Set(middleware.ContextUserID, userID)
			c.Set(middleware.ContextUser, &models.Profile{ID: userID, IsPlatformAdmin: platformAdmin})
		}
	}, handlers.Get)
	return r, mock
}

func TestGet_GlobalScopeIsPublic(t *testing.T) {
	router, mock := newBoardRig(t, "", "", false)

	rows := sqlmock.NewRows(boardColumns).
		AddRow(boardRow("user-1", "ada", 12, 30, 75)...).
		AddRow(boardRow("user-2", "grace", 9, 12, 40)...)
	mock.ExpectQuery(`SELECT s.user_id, p.username, .* WHERE p.is_public = true .* LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(rows)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"scope":"global"`) {
		t.Errorf("body missing global scope: %s", body)
	}
	if !strings.Contains(body, "ada") || !strings.Contains(body, "grace") {
		t.Errorf("body missing entries: %s", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGet_PaginationIsClamped(t *testing.T) {
	router, mock := newBoardRig(t, "", "", false)

	mock.ExpectQuery(`WHERE p.is_public = true`).
		WithArgs(100, 25).
		WillReturnRows(sqlmock.NewRows(boardColumns))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard?limit=5000&offset=25", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGet_OrgScopeRequiresSession(t *testing.T) {
	router, _ := newBoardRig(t, "org-1", "", false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestGet_OrgScopeRequiresMembership(t *testing.T) {
	router, mock := newBoardRig(t, "org-1", "user-9", false)

	mock.ExpectQuery(`SELECT id, organization_id, user_id, role, invited_by, joined_at\s+FROM organization_members\s+WHERE organization_id = \$1 AND user_id = \$2`).
		WithArgs("org-1", "user-9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestGet_OrgScopeForMember(t *testing.T) {
	router, mock := newBoardRig(t, "org-1", "user-9", false)

	memberRows := sqlmock.NewRows([]string{"id", "organization_id", "user_id", "role", "invited_by", "joined_at"}).
		AddRow("m-1", "org-1", "user-9", "member", nil, time.Now())
	mock.ExpectQuery(`FROM organization_members`).
		WithArgs("org-1", "user-9").
		WillReturnRows(memberRows)

	boardRows := sqlmock.NewRows(boardColumns).
		AddRow(boardRow("user-9", "ada", 3, 5, 20)...)
	mock.ExpectQuery(`JOIN organization_members m ON m.user_id = s.user_id\s+WHERE m.organization_id = \$1`).
		WithArgs("org-1", 50, 0).
		WillReturnRows(boardRows)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"scope":"organization"`) {
		t.Errorf("body missing organization scope: %s", w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGet_PlatformAdminBypassesMembership(t *testing.T) {
	router, mock := newBoardRig(t, "org-1", "admin-1", true)

	mock.ExpectQuery(`FROM organization_members`).
		WithArgs("org-1", "admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	mock.ExpectQuery(`WHERE m.organization_id = \$1`).
		WithArgs("org-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(boardColumns))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
