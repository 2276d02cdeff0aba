package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/auth"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
)

var profileColumns = []string{
	"id", "email", "username", "avatar_url", "is_public", "is_platform_admin", "oidc_sub", "created_at", "updated_at",
}

func profileRow(id, email string) *sqlmock.Rows {
	return sqlmock.NewRows(profileColumns).
		AddRow(id, email, nil, nil, true, false, nil, time.Now(), time.Now())
}

// newAuthRig wires AuthMiddleware over a sqlmock-backed profile repository and
// a handler that echoes the authenticated user id.
func newAuthRig(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	profiles := repositories.NewProfileRepository(sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.GET("/me", AuthMiddleware(profiles), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	r.GET("/public", OptionalAuthMiddleware(profiles), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r, mock
}

func accessToken(t *testing.T, userID string) string {
	t.Helper()
	pair, err := auth.GenerateTokenPair(userID, "runner@example.com", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}
	return pair.AccessToken
}

func TestAuthMiddleware_NoTokenRejected(t *testing.T) {
	r, _ := newAuthRig(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_GarbageTokenRejected(t *testing.T) {
	r, _ := newAuthRig(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_BearerHeaderAccepted(t *testing.T) {
	r, mock := newAuthRig(t)
	mock.ExpectQuery(`SELECT id, email, username, avatar_url, is_public, is_platform_admin, oidc_sub, created_at, updated_at\s+FROM profiles\s+WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(profileRow("user-1", "runner@example.com"))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, "user-1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuthMiddleware_SessionCookieAccepted(t *testing.T) {
	r, mock := newAuthRig(t)
	mock.ExpectQuery(`SELECT .+ FROM profiles\s+WHERE id = \$1`).
		WithArgs("user-2").
		WillReturnRows(profileRow("user-2", "runner@example.com"))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: accessToken(t, "user-2")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_DeletedUserRejected(t *testing.T) {
	r, mock := newAuthRig(t)
	mock.ExpectQuery(`SELECT .+ FROM profiles\s+WHERE id = \$1`).
		WithArgs("user-gone").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, "user-gone"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RefreshTokenRejectedAsSession(t *testing.T) {
	r, _ := newAuthRig(t)

	pair, err := auth.GenerateTokenPair("user-1", "runner@example.com", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (refresh tokens must not act as sessions)", w.Code, http.StatusUnauthorized)
	}
}

func TestOptionalAuthMiddleware_AnonymousPasses(t *testing.T) {
	r, _ := newAuthRig(t)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestOptionalAuthMiddleware_IdentifiesUser(t *testing.T) {
	r, mock := newAuthRig(t)
	mock.ExpectQuery(`SELECT .+ FROM profiles\s+WHERE id = \$1`).
		WithArgs("user-3").
		WillReturnRows(profileRow("user-3", "runner@example.com"))

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, "user-3"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != `{"user_id":"user-3"}` {
		t.Errorf("body = %s, want user-3 identified", body)
	}
}
