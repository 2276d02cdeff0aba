// Package connections implements the fitness-provider linking endpoints:
// starting and completing the OAuth flows, listing connections, triggering a
// pull sync, and disconnecting.
package connections

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/api/respond"
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/crypto"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/ingest"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
	"github.com/thirtyx30/thirtyx30/internal/provider"
	"github.com/thirtyx30/thirtyx30/internal/safego"
)

// Cookies used during the authorization round trip. OAuth2 needs only the
// state; OAuth 1.0a additionally parks the request token secret, which must
// come back at the callback to sign the access-token exchange.
const (
	StateCookie         = "t30_provider_state"
	RequestSecretCookie = "t30_provider_request_secret"
)

const flowTTL = 10 * time.Minute

// Handlers implements the /providers endpoints
type Handlers struct {
	cfg         *config.Config
	connections *repositories.ConnectionRepository
	connectors  map[provider.Kind]provider.Connector
	cipher      *crypto.TokenCipher
	ingest      *ingest.Service
}

// NewHandlers creates the provider connection handlers
func NewHandlers(
	cfg *config.Config,
	connections *repositories.ConnectionRepository,
	connectors map[provider.Kind]provider.Connector,
	cipher *crypto.TokenCipher,
	svc *ingest.Service,
) *Handlers {
	return &Handlers{
		cfg:         cfg,
		connections: connections,
		connectors:  connectors,
		cipher:      cipher,
		ingest:      svc,
	}
}

// connectionView is the API shape of a connection. Tokens never leave the
// database row.
type connectionView struct {
	Provider    string    `json:"provider"`
	ConnectedAt time.Time `json:"connected_at"`
	ExpiresAt   int64     `json:"expires_at,omitempty"`
}

// List returns the caller's provider connections.
// GET /api/v1/providers
func (h *Handlers) List(c *gin.Context) {
	conns, err := h.connections.ListByUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}

	views := make([]connectionView, 0, len(conns))
	for _, conn := range conns {
		views = append(views, connectionView{
			Provider:    conn.Provider,
			ConnectedAt: conn.CreatedAt,
			ExpiresAt:   conn.ExpiresAt,
		})
	}

	available := make([]string, 0, len(h.connectors))
	for kind := range h.connectors {
		available = append(available, string(kind))
	}

	c.JSON(http.StatusOK, gin.H{"connections": views, "available": available})
}

// Connect starts the authorization flow for a provider and redirects the
// browser to the provider's consent page.
// GET /api/v1/providers/:provider/connect
func (h *Handlers) Connect(c *gin.Context) {
	connector, ok := h.connector(c)
	if !ok {
		return
	}

	state, err := generateFlowToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate state"})
		return
	}

	req, err := connector.BeginAuthorization(c.Request.Context(), state, h.callbackURL(connector.Kind()))
	if err != nil {
		slog.Warn("provider authorization start failed", "provider", connector.Kind(), "error", err)
		respond.Error(c, err)
		return
	}

	domain := h.cfg.Auth.CookieDomain
	secure := h.cfg.Auth.SecureCookies
	c.SetCookie(StateCookie, state, int(flowTTL.Seconds()), "/", domain, secure, true)
	if req.RequestTokenSecret != "" {
		c.SetCookie(RequestSecretCookie, req.RequestTokenSecret, int(flowTTL.Seconds()), "/", domain, secure, true)
	}

	c.Redirect(http.StatusFound, req.URL)
}

// Callback completes the authorization flow, stores the encrypted tokens, and
// runs an initial pull sync before sending the browser back to settings.
// GET /api/v1/providers/:provider/callback
func (h *Handlers) Callback(c *gin.Context) {
	connector, ok := h.connector(c)
	if !ok {
		return
	}
	kind := connector.Kind()
	userID := middleware.UserID(c)

	settings := h.cfg.Server.GetPublicURL() + "/settings/connections"
	flowError := func(reason string) {
		c.Redirect(http.StatusFound, settings+"?error="+reason)
	}

	domain := h.cfg.Auth.CookieDomain
	secure := h.cfg.Auth.SecureCookies
	clearFlowCookies := func() {
		c.SetCookie(StateCookie, "", -1, "/", domain, secure, true)
		c.SetCookie(RequestSecretCookie, "", -1, "/", domain, secure, true)
	}

	cb := provider.Callback{
		Code:          c.Query("code"),
		OAuthToken:    c.Query("oauth_token"),
		OAuthVerifier: c.Query("oauth_verifier"),
	}

	if cb.Code != "" {
		// OAuth2 carries the state back as a query parameter.
		cookieState, err := c.Cookie(StateCookie)
		if err != nil || c.Query("state") != cookieState {
			clearFlowCookies()
			flowError("invalid_state")
			return
		}
	} else {
		// OAuth 1.0a has no state echo; the request token secret cookie
		// plays that role, since only this browser session holds it.
		secret, err := c.Cookie(RequestSecretCookie)
		if err != nil || secret == "" {
			clearFlowCookies()
			flowError("missing_request_secret")
			return
		}
		cb.RequestTokenSecret = secret
	}
	clearFlowCookies()

	token, err := connector.CompleteAuthorization(c.Request.Context(), cb, h.callbackURL(kind))
	if err != nil {
		slog.Warn("provider authorization exchange failed", "provider", kind, "error", err)
		flowError("authorization_failed")
		return
	}

	sealedAccess, err := h.cipher.Seal(token.AccessToken)
	if err != nil {
		flowError("token_storage_failed")
		return
	}
	sealedRefresh, err := h.cipher.Seal(token.RefreshToken)
	if err != nil {
		flowError("token_storage_failed")
		return
	}

	conn := &models.ProviderConnection{
		UserID:         userID,
		Provider:       string(kind),
		ProviderUserID: token.ProviderUserID,
		AccessToken:    sealedAccess,
		RefreshToken:   sealedRefresh,
		ExpiresAt:      token.ExpiresAt,
	}
	if err := h.connections.Upsert(c.Request.Context(), conn); err != nil {
		slog.Error("failed to store provider connection", "provider", kind, "error", err)
		flowError("token_storage_failed")
		return
	}
	slog.Info("provider connected", "provider", kind, "user_id", userID)

	// Initial backfill runs async so the redirect lands immediately.
	// Failures here don't undo the connection; the user can retry with a
	// manual sync.
	safego.Go("initial-provider-sync", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := h.ingest.SyncProvider(ctx, userID, kind, 0); err != nil {
			slog.Warn("initial provider sync failed", "provider", kind, "user_id", userID, "error", err)
		}
	})

	c.Redirect(http.StatusFound, settings+"?connected="+string(kind))
}

// Sync pulls recent activities from the provider on demand.
// POST /api/v1/providers/:provider/sync
func (h *Handlers) Sync(c *gin.Context) {
	connector, ok := h.connector(c)
	if !ok {
		return
	}

	result, err := h.ingest.SyncProvider(c.Request.Context(), middleware.UserID(c), connector.Kind(), 0)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fetched":  result.Fetched,
		"ingested": result.Ingested,
		"skipped":  result.Skipped,
	})
}

// Disconnect removes the provider connection. Previously ingested activities
// are kept; only the link and its tokens are discarded.
// DELETE /api/v1/providers/:provider
func (h *Handlers) Disconnect(c *gin.Context) {
	connector, ok := h.connector(c)
	if !ok {
		return
	}

	deleted, err := h.connections.Delete(c.Request.Context(), middleware.UserID(c), string(connector.Kind()))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "provider is not connected"})
		return
	}

	slog.Info("provider disconnected", "provider", connector.Kind(), "user_id", middleware.UserID(c))
	c.Status(http.StatusNoContent)
}

// connector resolves the :provider path parameter to an enabled connector,
// writing the error response itself when it cannot.
func (h *Handlers) connector(c *gin.Context) (provider.Connector, bool) {
	kind := provider.Kind(c.Param("provider"))
	if !kind.IsValid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return nil, false
	}
	connector, ok := h.connectors[kind]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "provider is not enabled"})
		return nil, false
	}
	return connector, true
}

func (h *Handlers) callbackURL(kind provider.Kind) string {
	return h.cfg.Server.GetPublicURL() + "/api/v1/providers/" + string(kind) + "/callback"
}

func generateFlowToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
