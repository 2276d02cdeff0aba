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
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
)

var orgColumns = []string{
	"id", "name", "slug", "description", "is_active", "created_by", "created_at", "updated_at",
}

var memberColumns = []string{
	"id", "organization_id", "user_id", "role", "invited_by", "joined_at",
}

func orgRow(id, slug string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(orgColumns).
		AddRow(id, "Acme Runners", slug, nil, active, "user-1", time.Now(), time.Now())
}

func tenantConfig() *config.Config {
	return &config.Config{
		Tenancy: config.TenancyConfig{BaseDomain: "30x30.app"},
		Auth:    config.AuthConfig{SecureCookies: true},
	}
}

func newTenantRig(t *testing.T, cfg *config.Config) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	orgs := repositories.NewOrganizationRepository(sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.Use(TenantMiddleware(cfg, orgs))
	r.GET("/leaderboard", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"org_id": OrgID(c)})
	})
	return r, mock
}

func TestTenantMiddleware_BaseDomainHasNoOrg(t *testing.T) {
	r, _ := newTenantRig(t, tenantConfig())

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	req.Host = "30x30.app"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != `{"org_id":""}` {
		t.Errorf("body = %s, want empty org_id on the base domain", body)
	}
}

func TestTenantMiddleware_SubdomainResolvesOrg(t *testing.T) {
	r, mock := newTenantRig(t, tenantConfig())
	mock.ExpectQuery(`SELECT .+ FROM organizations\s+WHERE slug = \$1`).
		WithArgs("acme").
		WillReturnRows(orgRow("org-1", "acme", true))

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	req.Host = "acme.30x30.app"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != `{"org_id":"org-1"}` {
		t.Errorf("body = %s, want org-1 resolved from subdomain", body)
	}
}

func TestTenantMiddleware_UnknownSubdomainRedirectsToBase(t *testing.T) {
	r, mock := newTenantRig(t, tenantConfig())
	mock.ExpectQuery(`SELECT .+ FROM organizations\s+WHERE slug = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(orgColumns))

	req := httptest.NewRequest(http.MethodGet, "/leaderboard?window=30", nil)
	req.Host = "ghost.30x30.app"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	want := "https://30x30.app/leaderboard?window=30"
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestTenantMiddleware_InactiveOrgRedirects(t *testing.T) {
	r, mock := newTenantRig(t, tenantConfig())
	mock.ExpectQuery(`SELECT .+ FROM organizations\s+WHERE slug = \$1`).
		WithArgs("dormant").
		WillReturnRows(orgRow("org-9", "dormant", false))

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	req.Host = "dormant.30x30.app"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d for inactive org", w.Code, http.StatusTemporaryRedirect)
	}
}

func TestTenantMiddleware_QuerySlugFallback(t *testing.T) {
	cfg := tenantConfig()
	cfg.Tenancy.AllowQuerySlug = true

	r, mock := newTenantRig(t, cfg)
	mock.ExpectQuery(`SELECT .+ FROM organizations\s+WHERE slug = \$1`).
		WithArgs("acme").
		WillReturnRows(orgRow("org-1", "acme", true))

	req := httptest.NewRequest(http.MethodGet, "/leaderboard?org=acme", nil)
	req.Host = "localhost:8080"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != `{"org_id":"org-1"}` {
		t.Errorf("body = %s, want org-1 resolved from ?org=", body)
	}
}

func newRootOnlyRig(cfg *config.Config, orgID string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if orgID != "" {
			c.Set(ContextOrgID, orgID)
		}
	})
	r.POST("/orgs", RootOnlyMiddleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"created": true})
	})
	return r
}

func TestRootOnlyMiddleware_SubdomainRedirectsToBase(t *testing.T) {
	r := newRootOnlyRig(tenantConfig(), "org-1")

	req := httptest.NewRequest(http.MethodPost, "/orgs?step=2", nil)
	req.Host = "acme.30x30.app"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	want := "https://30x30.app/orgs?step=2"
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestRootOnlyMiddleware_RootScopePassesThrough(t *testing.T) {
	r := newRootOnlyRig(tenantConfig(), "")

	req := httptest.NewRequest(http.MethodPost, "/orgs", nil)
	req.Host = "30x30.app"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d at root scope", w.Code, http.StatusCreated)
	}
}

// newMembershipRig wires MembershipMiddleware behind a stub that seeds the
// tenant and identity context keys, skipping the full auth stack.
func newMembershipRig(t *testing.T, orgID, userID string, required auth.Role) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	orgs := repositories.NewOrganizationRepository(sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if orgID != "" {
			c.Set(ContextOrgID, orgID)
		}
		if userID != "" {
			c.Set(ContextUserID, userID)
		}
	})
	r.GET("/members", MembershipMiddleware(orgs, required), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": string(MemberRole(c))})
	})
	return r, mock
}

func expectMemberLookup(mock sqlmock.Sqlmock, orgID, userID, role string) {
	rows := sqlmock.NewRows(memberColumns).
		AddRow("m-1", orgID, userID, role, nil, time.Now())
	mock.ExpectQuery(`SELECT .+ FROM organization_members\s+WHERE organization_id = \$1 AND user_id = \$2`).
		WithArgs(orgID, userID).
		WillReturnRows(rows)
}

func TestMembershipMiddleware_MemberAllowed(t *testing.T) {
	r, mock := newMembershipRig(t, "org-1", "user-1", auth.RoleMember)
	expectMemberLookup(mock, "org-1", "user-1", "member")

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != `{"role":"member"}` {
		t.Errorf("body = %s, want member role in context", body)
	}
}

func TestMembershipMiddleware_InsufficientRoleForbidden(t *testing.T) {
	r, mock := newMembershipRig(t, "org-1", "user-1", auth.RoleAdmin)
	expectMemberLookup(mock, "org-1", "user-1", "member")

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d for member hitting an admin route", w.Code, http.StatusForbidden)
	}
}

func TestMembershipMiddleware_NonMemberForbidden(t *testing.T) {
	r, mock := newMembershipRig(t, "org-1", "user-7", auth.RoleMember)
	mock.ExpectQuery(`SELECT .+ FROM organization_members\s+WHERE organization_id = \$1 AND user_id = \$2`).
		WithArgs("org-1", "user-7").
		WillReturnRows(sqlmock.NewRows(memberColumns))

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d for a non-member", w.Code, http.StatusForbidden)
	}
}

func TestMembershipMiddleware_UnauthenticatedRejected(t *testing.T) {
	r, _ := newMembershipRig(t, "org-1", "", auth.RoleMember)

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d without identity", w.Code, http.StatusUnauthorized)
	}
}

func TestMembershipMiddleware_NoOrgIsNotFound(t *testing.T) {
	r, _ := newMembershipRig(t, "", "user-1", auth.RoleMember)

	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d on a root-scope request", w.Code, http.StatusNotFound)
	}
}
