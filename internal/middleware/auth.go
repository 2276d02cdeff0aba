// Package middleware provides Gin HTTP middleware for authentication, tenant
// resolution, authorization, rate limiting, security headers, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Tenant → Auth → Membership → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute force before any DB work.
// Tenant resolution is independent of identity and runs before auth so that
// domain gating can redirect unauthenticated requests too. Auth populates the
// user identity; membership checks read both tenant and identity from context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/auth"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
)

// Session cookie names. The access token also rides in the Authorization
// header for non-browser clients; the cookie exists so subdomain navigation
// stays logged in without frontend token plumbing.
const (
	CookieAccessToken  = "t30_session"
	CookieRefreshToken = "t30_refresh"
)

// Context keys set by AuthMiddleware
const (
	ContextUser   = "user"
	ContextUserID = "user_id"
)

// sessionToken extracts the access token from the Authorization header or,
// failing that, the session cookie.
func sessionToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie(CookieAccessToken); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware validates the session and loads the profile into context
func AuthMiddleware(profiles *repositories.ProfileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		claims, err := auth.ValidateToken(token, auth.TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired session",
			})
			return
		}

		profile, err := profiles.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "failed to load user",
			})
			return
		}
		if profile == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "user not found",
			})
			return
		}

		c.Set(ContextUser, profile)
		c.Set(ContextUserID, profile.ID)
		c.Next()
	}
}

// OptionalAuthMiddleware loads the profile when a valid session is present but
// never aborts. Used on public leaderboard routes that personalize for members.
func OptionalAuthMiddleware(profiles *repositories.ProfileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := auth.ValidateToken(token, auth.TokenTypeAccess)
		if err != nil {
			c.Next()
			return
		}

		profile, err := profiles.GetByID(c.Request.Context(), claims.UserID)
		if err == nil && profile != nil {
			c.Set(ContextUser, profile)
			c.Set(ContextUserID, profile.ID)
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id from context, or ""
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
