// Package api wires together all HTTP routes for the 30x30 Challenge backend.
//
// Route grouping philosophy:
//   - Webhook and health endpoints are unauthenticated; fitness providers and
//     load balancers cannot present a session.
//   - The leaderboard is public on the base domain and membership-gated on
//     organization subdomains; the handler resolves the scope from context.
//   - Everything else requires a session, with organization routes adding a
//     membership check on top.
//
// Middleware ordering matters: security headers first so they appear on every
// response including errors, rate limiting before auth to stop brute force
// before any database work, tenant resolution before auth so domain gating can
// redirect unauthenticated requests too.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/thirtyx30/thirtyx30/internal/activity"
	"github.com/thirtyx30/thirtyx30/internal/api/activities"
	"github.com/thirtyx30/thirtyx30/internal/api/authn"
	"github.com/thirtyx30/thirtyx30/internal/api/connections"
	"github.com/thirtyx30/thirtyx30/internal/api/leaderboard"
	"github.com/thirtyx30/thirtyx30/internal/api/orgs"
	"github.com/thirtyx30/thirtyx30/internal/api/profiles"
	"github.com/thirtyx30/thirtyx30/internal/api/webhooks"
	"github.com/thirtyx30/thirtyx30/internal/audit"
	"github.com/thirtyx30/thirtyx30/internal/auth"
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/crypto"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/ingest"
	"github.com/thirtyx30/thirtyx30/internal/jobs"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
	"github.com/thirtyx30/thirtyx30/internal/provider"
	"github.com/thirtyx30/thirtyx30/internal/storage"

	// Storage backends register themselves via init()
	_ "github.com/thirtyx30/thirtyx30/internal/storage/local"
	_ "github.com/thirtyx30/thirtyx30/internal/storage/s3"

	// Provider connectors register themselves via init()
	_ "github.com/thirtyx30/thirtyx30/internal/provider/garmin"
	_ "github.com/thirtyx30/thirtyx30/internal/provider/strava"
)

const (
	providerSyncInterval      = 30 * time.Minute
	invitationCleanupInterval = time.Hour
)

// BackgroundServices holds background jobs that must be stopped during
// graceful shutdown. The caller (cmd/server) calls Shutdown after the HTTP
// server has drained in-flight requests.
type BackgroundServices struct {
	providerSyncJob   *jobs.ProviderSyncJob
	invitationCleanup *jobs.InvitationCleanupJob
	auditShipper      audit.Shipper
}

// Shutdown stops all background goroutines
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.providerSyncJob != nil {
		bg.providerSyncJob.Stop()
	}
	if bg.invitationCleanup != nil {
		bg.invitationCleanup.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Error("closing audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the background
// jobs
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	store, err := storage.NewStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing storage backend: %w", err)
	}
	slog.Info("storage backend initialized", "backend", cfg.Storage.DefaultBackend)

	cipher, err := tokenCipherFromEnv()
	if err != nil {
		return nil, nil, err
	}

	profileRepo := repositories.NewProfileRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	invitationRepo := repositories.NewInvitationRepository(db)
	activityRepo := repositories.NewActivityRepository(db)
	streakRepo := repositories.NewStreakRepository(db)
	leaderboardRepo := repositories.NewLeaderboardRepository(db)
	connectionRepo := repositories.NewConnectionRepository(db)

	connectors, err := buildConnectors(cfg)
	if err != nil {
		return nil, nil, err
	}

	recomputer := activity.NewRecomputer(activityRepo, streakRepo)
	ingestSvc := ingest.NewService(activityRepo, connectionRepo, recomputer, cipher, connectors)

	authHandlers := authn.NewHandlers(cfg, profileRepo)
	activityHandlers := activities.NewHandlers(ingestSvc, activityRepo, streakRepo)
	orgHandlers := orgs.NewHandlers(cfg, orgRepo, invitationRepo)
	connectionHandlers := connections.NewHandlers(cfg, connectionRepo, connectors, cipher, ingestSvc)
	stravaWebhooks := webhooks.NewStravaHandlers(&cfg.Providers.Strava, ingestSvc)
	leaderboardHandlers := leaderboard.NewHandlers(leaderboardRepo, orgRepo)
	profileHandlers := profiles.NewHandlers(cfg, profileRepo, store)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RateLimitMiddleware(&cfg.Security.RateLimiting))
	router.Use(middleware.TenantMiddleware(cfg, orgRepo))

	auditShipper, err := buildAuditShipper(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing audit trail: %w", err)
	}
	if auditShipper != nil {
		router.Use(middleware.AuditMiddleware(auditShipper))
	}

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, store))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	{
		// Login flow and session management; no session required.
		authGroup := apiV1.Group("/auth")
		{
			authGroup.GET("/login", authHandlers.LoginHandler())
			authGroup.GET("/callback", authHandlers.CallbackHandler())
			authGroup.POST("/refresh", authHandlers.RefreshHandler())
			authGroup.POST("/logout", authHandlers.LogoutHandler())
		}

		// Provider webhooks authenticate with the verify token, not a session.
		apiV1.GET("/webhooks/strava", stravaWebhooks.Verify)
		apiV1.POST("/webhooks/strava", stravaWebhooks.Event)

		// Avatar files for the local storage backend.
		apiV1.GET("/files/*filepath", profileHandlers.ServeFile)

		// Leaderboard: public globally, membership-checked per organization.
		apiV1.GET("/leaderboard",
			middleware.OptionalAuthMiddleware(profileRepo),
			leaderboardHandlers.Get)

		authed := apiV1.Group("")
		authed.Use(middleware.AuthMiddleware(profileRepo))
		{
			authed.GET("/me", profileHandlers.Me)
			authed.PUT("/me", profileHandlers.Update)
			authed.DELETE("/me", profileHandlers.Delete)
			authed.POST("/me/avatar", profileHandlers.UploadAvatar)
			authed.GET("/me/streak", activityHandlers.Streak)

			authed.POST("/activities", activityHandlers.Create)
			authed.GET("/activities", activityHandlers.List)
			authed.GET("/activities/daily", activityHandlers.Daily)
			authed.GET("/activities/:id", activityHandlers.Get)
			authed.DELETE("/activities/:id", activityHandlers.Delete)

			authed.POST("/orgs", middleware.RootOnlyMiddleware(cfg), orgHandlers.Create)
			authed.GET("/orgs", orgHandlers.ListMine)
			authed.POST("/invitations/accept", orgHandlers.AcceptInvitation)
			authed.GET("/admin/orgs", orgHandlers.ListAll)

			member := authed.Group("/orgs/:org_id")
			member.Use(middleware.MembershipMiddleware(orgRepo, auth.RoleMember))
			{
				member.GET("", orgHandlers.Get)
				member.GET("/members", orgHandlers.ListMembers)
				// Role checks beyond membership (who may change whom)
				// live in the handlers, which know both roles.
				member.PUT("/members/:user_id", orgHandlers.UpdateMemberRole)
				member.DELETE("/members/:user_id", orgHandlers.RemoveMember)
			}

			orgAdmin := authed.Group("/orgs/:org_id")
			orgAdmin.Use(middleware.MembershipMiddleware(orgRepo, auth.RoleAdmin))
			{
				orgAdmin.POST("/invitations", orgHandlers.CreateInvitation)
				orgAdmin.GET("/invitations", orgHandlers.ListInvitations)
				orgAdmin.DELETE("/invitations/:invitation_id", orgHandlers.RevokeInvitation)
			}

			orgOwner := authed.Group("/orgs/:org_id")
			orgOwner.Use(middleware.MembershipMiddleware(orgRepo, auth.RoleOwner))
			{
				orgOwner.PUT("", orgHandlers.Update)
			}

			authed.GET("/providers", connectionHandlers.List)
			authed.GET("/providers/:provider/connect", connectionHandlers.Connect)
			authed.GET("/providers/:provider/callback", connectionHandlers.Callback)
			authed.POST("/providers/:provider/sync", connectionHandlers.Sync)
			authed.DELETE("/providers/:provider", connectionHandlers.Disconnect)
		}
	}

	bg := &BackgroundServices{
		providerSyncJob:   jobs.NewProviderSyncJob(connectionRepo, ingestSvc),
		invitationCleanup: jobs.NewInvitationCleanupJob(invitationRepo),
		auditShipper:      auditShipper,
	}
	bg.providerSyncJob.Start(context.Background(), providerSyncInterval)
	bg.invitationCleanup.Start(context.Background(), invitationCleanupInterval)

	return router, bg, nil
}

// tokenCipherFromEnv builds the cipher used for provider OAuth tokens at
// rest. The key comes from T30_ENCRYPTION_KEY (32 bytes, hex-encoded). In dev
// mode a random key is generated, which means stored connections do not
// survive a restart.
func tokenCipherFromEnv() (*crypto.TokenCipher, error) {
	if hexKey := os.Getenv("T30_ENCRYPTION_KEY"); hexKey != "" {
		cipher, err := crypto.NewTokenCipherFromHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("T30_ENCRYPTION_KEY is invalid: %w", err)
		}
		return cipher, nil
	}

	if os.Getenv("DEV_MODE") == "true" || os.Getenv("GIN_MODE") != "release" {
		slog.Warn("T30_ENCRYPTION_KEY not set, using a random key; provider connections will not survive restarts")
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		return crypto.NewTokenCipher(key)
	}

	return nil, fmt.Errorf("T30_ENCRYPTION_KEY environment variable must be set")
}

// buildAuditShipper assembles the audit destinations from config. Returns nil
// when auditing is disabled.
func buildAuditShipper(cfg *config.Config) (audit.Shipper, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}

	configs := []audit.ShipperConfig{
		{
			Enabled: true,
			Type:    "file",
			File: &audit.FileConfig{
				Path:       cfg.Audit.FilePath,
				MaxSizeMB:  cfg.Audit.FileMaxSizeMB,
				MaxBackups: cfg.Audit.FileMaxBackups,
			},
		},
	}
	if cfg.Audit.WebhookURL != "" {
		configs = append(configs, audit.ShipperConfig{
			Enabled: true,
			Type:    "webhook",
			Webhook: &audit.WebhookConfig{
				URL:           cfg.Audit.WebhookURL,
				Timeout:       cfg.Audit.WebhookTimeout,
				BatchSize:     cfg.Audit.WebhookBatchSize,
				FlushInterval: cfg.Audit.WebhookFlushInterval,
			},
		})
	}

	shipper, err := audit.NewMultiShipper(configs)
	if err != nil {
		return nil, err
	}
	slog.Info("audit trail enabled", "file", cfg.Audit.FilePath, "webhook", cfg.Audit.WebhookURL != "")
	return shipper, nil
}

// buildConnectors instantiates one connector per enabled provider
func buildConnectors(cfg *config.Config) (map[provider.Kind]provider.Connector, error) {
	connectors := make(map[provider.Kind]provider.Connector)

	if cfg.Providers.Strava.Enabled {
		connector, err := provider.BuildConnector(&provider.Settings{
			Kind:         provider.KindStrava,
			ClientID:     cfg.Providers.Strava.ClientID,
			ClientSecret: cfg.Providers.Strava.ClientSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("building strava connector: %w", err)
		}
		connectors[provider.KindStrava] = connector
		slog.Info("provider enabled", "provider", provider.KindStrava)
	}

	if cfg.Providers.Garmin.Enabled {
		connector, err := provider.BuildConnector(&provider.Settings{
			Kind:           provider.KindGarmin,
			ConsumerKey:    cfg.Providers.Garmin.ConsumerKey,
			ConsumerSecret: cfg.Providers.Garmin.ConsumerSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("building garmin connector: %w", err)
		}
		connectors[provider.KindGarmin] = connector
		slog.Info("provider enabled", "provider", provider.KindGarmin)
	}

	return connectors, nil
}

func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
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

// readinessHandler also checks the storage backend, so a Kubernetes readiness
// gate fails when avatar uploads would error. The probe uses Exists on a
// known-absent sentinel path, which exercises authentication and connectivity
// without creating state.
func readinessHandler(db *sqlx.DB, store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if _, err := store.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
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

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured log record per request
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

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
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles cross-origin requests from the frontend
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

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

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
