// tenant.go resolves the request's organization scope from the Host header and
// enforces domain gating: an organization subdomain only serves members.
package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/auth"
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/tenant"
)

// Context keys set by TenantMiddleware and MembershipMiddleware
const (
	ContextOrg        = "organization"
	ContextOrgID      = "organization_id"
	ContextMemberRole = "member_role"
)

// TenantMiddleware resolves the organization for the request host and stores
// it in context. Root-scope requests (base domain, localhost) pass through
// with no organization set. An unknown or inactive subdomain is redirected to
// the base domain with the original path and query preserved, so a stale
// bookmark lands somewhere useful instead of a 404 page.
//
// When cfg.Tenancy.AllowQuerySlug is set (local development without wildcard
// DNS), an ?org=slug query parameter substitutes for the subdomain.
func TenantMiddleware(cfg *config.Config, orgs *repositories.OrganizationRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := tenant.Resolve(c.Request.Host, cfg.Tenancy.BaseDomain)
		if slug == "" && cfg.Tenancy.AllowQuerySlug {
			slug = tenant.NormalizeSlug(c.Query("org"))
		}

		if slug == "" {
			c.Next()
			return
		}

		org, err := orgs.GetBySlug(c.Request.Context(), slug)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "failed to resolve organization",
			})
			return
		}
		if org == nil || !org.IsActive {
			redirectToBase(c, cfg)
			return
		}

		c.Set(ContextOrg, org)
		c.Set(ContextOrgID, org.ID)
		c.Next()
	}
}

// redirectToBase sends the request to the same path on the base domain,
// keeping the query string
func redirectToBase(c *gin.Context, cfg *config.Config) {
	scheme := "https"
	if !cfg.Auth.SecureCookies {
		scheme = "http"
	}

	target := url.URL{
		Scheme:   scheme,
		Host:     cfg.Tenancy.BaseDomain,
		Path:     c.Request.URL.Path,
		RawQuery: c.Request.URL.RawQuery,
	}
	c.Redirect(http.StatusTemporaryRedirect, target.String())
	c.Abort()
}

// RootOnlyMiddleware redirects requests that arrived on an organization
// subdomain back to the same path on the base domain, query preserved. It
// guards routes that only make sense at root scope, like organization
// creation. Must run after TenantMiddleware.
func RootOnlyMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextOrgID) != "" {
			redirectToBase(c, cfg)
			return
		}
		c.Next()
	}
}

// MembershipMiddleware requires the authenticated user to be a member of the
// request's organization with at least the given role. It must run after both
// TenantMiddleware and AuthMiddleware. On a root-scope request it rejects,
// because the routes it guards are organization routes.
func MembershipMiddleware(orgs *repositories.OrganizationRepository, required auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetString(ContextOrgID)
		if orgID == "" {
			// Org routes can also address the org by path id on the base domain.
			orgID = c.Param("org_id")
		}
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "organization not found",
			})
			return
		}

		userID := UserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		member, err := orgs.GetMember(c.Request.Context(), orgID, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "failed to check membership",
			})
			return
		}
		if member == nil {
			if p, ok := c.Get(ContextUser); ok {
				if profile, ok := p.(*models.Profile); ok && profile.IsPlatformAdmin {
					c.Set(ContextMemberRole, string(auth.RoleOwner))
					c.Set(ContextOrgID, orgID)
					c.Next()
					return
				}
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "not a member of this organization",
			})
			return
		}

		if !auth.Role(member.Role).AtLeast(required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient role",
			})
			return
		}

		c.Set(ContextMemberRole, member.Role)
		c.Set(ContextOrgID, orgID)
		c.Next()
	}
}

// OrgID returns the resolved organization id from context, or ""
func OrgID(c *gin.Context) string {
	return c.GetString(ContextOrgID)
}

// MemberRole returns the acting member's role from context
func MemberRole(c *gin.Context) auth.Role {
	return auth.Role(c.GetString(ContextMemberRole))
}
