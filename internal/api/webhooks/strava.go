// Package webhooks implements inbound provider event endpoints. Strava pushes
// activity events; Garmin's push API requires a commercial agreement, so
// Garmin stays pull-only via sync.
package webhooks

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/ingest"
	"github.com/thirtyx30/thirtyx30/internal/provider"
)

// StravaHandlers implements the Strava webhook endpoints
type StravaHandlers struct {
	cfg    *config.StravaConfig
	ingest *ingest.Service
}

// NewStravaHandlers creates the Strava webhook handlers
func NewStravaHandlers(cfg *config.StravaConfig, svc *ingest.Service) *StravaHandlers {
	return &StravaHandlers{cfg: cfg, ingest: svc}
}

// Verify answers Strava's subscription validation handshake. Strava calls
// this once when the webhook subscription is created and expects the
// hub.challenge echoed back within 2 seconds.
// GET /api/v1/webhooks/strava
func (h *StravaHandlers) Verify(c *gin.Context) {
	if c.Query("hub.mode") != "subscribe" || c.Query("hub.verify_token") != h.cfg.WebhookVerifyToken {
		c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hub.challenge": c.Query("hub.challenge")})
}

// stravaEvent is Strava's push payload. owner_id is the athlete, object_id
// the activity.
type stravaEvent struct {
	ObjectType string `json:"object_type"`
	AspectType string `json:"aspect_type"`
	ObjectID   int64  `json:"object_id"`
	OwnerID    int64  `json:"owner_id"`
}

// Event ingests a pushed activity event. Strava retries deliveries that do
// not get a 2xx within 2 seconds, so every handled or ignorable condition
// returns 200; only a malformed payload is rejected.
// POST /api/v1/webhooks/strava
func (h *StravaHandlers) Event(c *gin.Context) {
	var event stravaEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	// Only new activities matter. Updates and deletes of provider data do
	// not retract ingested entries; athlete events (deauthorization) are
	// handled by the user disconnecting.
	if event.ObjectType != "activity" || event.AspectType != "create" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	err := h.ingest.HandleProviderEvent(
		c.Request.Context(),
		provider.KindStrava,
		strconv.FormatInt(event.OwnerID, 10),
		strconv.FormatInt(event.ObjectID, 10),
	)
	if err != nil {
		// Logged but still 200: a transient failure will be covered by
		// the next pull sync, and erroring would make Strava hammer us
		// with retries.
		slog.Warn("strava webhook ingest failed",
			"object_id", event.ObjectID, "owner_id", event.OwnerID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
