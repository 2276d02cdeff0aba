// Package authn implements login, logout, and session refresh. Authentication
// is delegated entirely to the configured OIDC identity provider; this package
// exchanges the provider's ID token for the app's own JWT session pair.
package authn

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/auth"
	"github.com/thirtyx30/thirtyx30/internal/auth/oidc"
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
)

// StateCookie holds the CSRF state between the login redirect and the
// provider's callback. Short-lived and HttpOnly; one login flow at a time.
const StateCookie = "t30_oauth_state"

const stateTTL = 10 * time.Minute

// Handlers implements the /auth endpoints
type Handlers struct {
	cfg          *config.Config
	profiles     *repositories.ProfileRepository
	oidcProvider *oidc.OIDCProvider
}

// NewHandlers creates the auth handlers, initializing the OIDC provider when
// one is configured. Startup proceeds without a provider so the health and
// webhook endpoints work in partially configured environments; login then
// returns an explicit error.
func NewHandlers(cfg *config.Config, profiles *repositories.ProfileRepository) *Handlers {
	h := &Handlers{cfg: cfg, profiles: profiles}

	if cfg.Auth.OIDC.Enabled {
		provider, err := oidc.NewOIDCProvider(&cfg.Auth.OIDC)
		if err != nil {
			slog.Error("failed to initialize OIDC provider", "issuer", cfg.Auth.OIDC.IssuerURL, "error", err)
		} else {
			h.oidcProvider = provider
			slog.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
		}
	}

	return h
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// LoginHandler initiates the OIDC login flow.
// GET /api/v1/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidcProvider == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
			return
		}

		state, err := generateState()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate state"})
			return
		}

		c.SetCookie(StateCookie, state, int(stateTTL.Seconds()), "/",
			h.cfg.Auth.CookieDomain, h.cfg.Auth.SecureCookies, true)

		c.Redirect(http.StatusFound, h.oidcProvider.GetAuthURL(state))
	}
}

// CallbackHandler completes the OIDC flow: validates state, exchanges the
// code, verifies the ID token, upserts the profile, and establishes the
// session cookies before sending the browser back to the frontend.
// GET /api/v1/auth/callback?code=...&state=...
func (h *Handlers) CallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		frontend := h.cfg.Server.GetPublicURL()

		callbackError := func(reason string) {
			c.Redirect(http.StatusFound, frontend+"/login?error="+reason)
		}

		if h.oidcProvider == nil {
			callbackError("login_not_configured")
			return
		}

		state := c.Query("state")
		cookieState, err := c.Cookie(StateCookie)
		if err != nil || state == "" || state != cookieState {
			callbackError("invalid_state")
			return
		}
		// Clear the state cookie; one flow per state.
		c.SetCookie(StateCookie, "", -1, "/", h.cfg.Auth.CookieDomain, h.cfg.Auth.SecureCookies, true)

		ctx := c.Request.Context()

		token, err := h.oidcProvider.ExchangeCode(ctx, c.Query("code"))
		if err != nil {
			slog.Warn("OIDC code exchange failed", "error", err)
			callbackError("token_exchange_failed")
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok {
			callbackError("no_id_token")
			return
		}

		idToken, err := h.oidcProvider.VerifyIDToken(ctx, rawIDToken)
		if err != nil {
			slog.Warn("OIDC ID token verification failed", "error", err)
			callbackError("id_token_invalid")
			return
		}

		sub, email, err := h.oidcProvider.ExtractUserInfo(idToken)
		if err != nil {
			callbackError("user_info_failed")
			return
		}

		profile, err := h.profiles.GetOrCreateFromOIDC(ctx, sub, email)
		if err != nil {
			slog.Error("failed to upsert profile from OIDC login", "error", err)
			callbackError("profile_error")
			return
		}

		pair, err := auth.GenerateTokenPair(profile.ID, profile.Email, h.accessTTL(), h.refreshTTL())
		if err != nil {
			slog.Error("failed to generate session tokens", "error", err)
			callbackError("session_error")
			return
		}

		h.setSessionCookies(c, pair)
		slog.Info("user logged in", "user_id", profile.ID)

		c.Redirect(http.StatusFound, frontend+"/")
	}
}

// RefreshHandler rotates the session pair using the refresh cookie or a JSON
// body for non-browser clients.
// POST /api/v1/auth/refresh
func (h *Handlers) RefreshHandler() gin.HandlerFunc {
	type refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}

	return func(c *gin.Context) {
		refreshToken, err := c.Cookie(middleware.CookieRefreshToken)
		if err != nil || refreshToken == "" {
			var req refreshRequest
			if err := c.ShouldBindJSON(&req); err == nil {
				refreshToken = req.RefreshToken
			}
		}
		if refreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token required"})
			return
		}

		claims, err := auth.ValidateToken(refreshToken, auth.TokenTypeRefresh)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
			return
		}

		profile, err := h.profiles.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		if profile == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		pair, err := auth.GenerateTokenPair(profile.ID, profile.Email, h.accessTTL(), h.refreshTTL())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate session tokens"})
			return
		}

		h.setSessionCookies(c, pair)
		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_at":    pair.ExpiresAt,
		})
	}
}

// LogoutHandler clears the session cookies. The JWTs themselves stay valid
// until expiry; logout is a client-side operation.
// POST /api/v1/auth/logout
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := h.cfg.Auth.CookieDomain
		secure := h.cfg.Auth.SecureCookies
		c.SetCookie(middleware.CookieAccessToken, "", -1, "/", domain, secure, true)
		c.SetCookie(middleware.CookieRefreshToken, "", -1, "/", domain, secure, true)

		resp := gin.H{"status": "logged out"}
		if h.oidcProvider != nil {
			if endSession := h.oidcProvider.GetEndSessionEndpoint(); endSession != "" {
				resp["end_session_endpoint"] = endSession
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// setSessionCookies installs both session cookies. The cookie domain covers
// organization subdomains so tenant navigation stays logged in.
func (h *Handlers) setSessionCookies(c *gin.Context, pair *auth.TokenPair) {
	domain := h.cfg.Auth.CookieDomain
	secure := h.cfg.Auth.SecureCookies
	c.SetCookie(middleware.CookieAccessToken, pair.AccessToken,
		int(h.accessTTL().Seconds()), "/", domain, secure, true)
	c.SetCookie(middleware.CookieRefreshToken, pair.RefreshToken,
		int(h.refreshTTL().Seconds()), "/", domain, secure, true)
}

func (h *Handlers) accessTTL() time.Duration {
	if h.cfg.Auth.AccessTokenTTL > 0 {
		return h.cfg.Auth.AccessTokenTTL
	}
	return 15 * time.Minute
}

func (h *Handlers) refreshTTL() time.Duration {
	if h.cfg.Auth.RefreshTokenTTL > 0 {
		return h.cfg.Auth.RefreshTokenTTL
	}
	return 30 * 24 * time.Hour
}
