// Package activities implements the activity log endpoints: manual entry,
// listing, deletion, the daily calendar, and the caller's streak.
package activities

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/activity"
	"github.com/thirtyx30/thirtyx30/internal/api/respond"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/ingest"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Handlers implements the /activities endpoints
type Handlers struct {
	ingest     *ingest.Service
	activities *repositories.ActivityRepository
	streaks    *repositories.StreakRepository
}

// NewHandlers creates the activity handlers
func NewHandlers(svc *ingest.Service, activities *repositories.ActivityRepository, streaks *repositories.StreakRepository) *Handlers {
	return &Handlers{ingest: svc, activities: activities, streaks: streaks}
}

type createRequest struct {
	Date            string  `json:"date" binding:"required"`
	DurationMinutes int     `json:"duration_minutes" binding:"required"`
	Type            string  `json:"type" binding:"required"`
	Name            string  `json:"name"`
	Notes           *string `json:"notes"`
}

// Create logs a manual activity for the authenticated user. On an organization
// subdomain the entry is tagged with the organization.
// POST /api/v1/activities
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	entry := ingest.ManualEntry{
		Date:            req.Date,
		DurationMinutes: req.DurationMinutes,
		Type:            req.Type,
		Name:            req.Name,
		Notes:           req.Notes,
	}
	if orgID := middleware.OrgID(c); orgID != "" {
		entry.OrganizationID = &orgID
	}

	record, err := h.ingest.LogManual(c.Request.Context(), middleware.UserID(c), entry)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// List returns the user's activities, newest first, with optional date range.
// GET /api/v1/activities?from=YYYY-MM-DD&to=YYYY-MM-DD&limit=&offset=
func (h *Handlers) List(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	for _, d := range []string{from, to} {
		if d != "" {
			if _, err := time.Parse(activity.DateLayout, d); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be in YYYY-MM-DD format"})
				return
			}
		}
	}

	limit, offset := pagination(c)

	items, err := h.activities.ListByUser(c.Request.Context(), middleware.UserID(c), from, to, limit, offset)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"activities": items,
		"limit":      limit,
		"offset":     offset,
	})
}

// Get returns one activity. Activities belonging to other users are reported
// as not found rather than forbidden.
// GET /api/v1/activities/:id
func (h *Handlers) Get(c *gin.Context) {
	record, err := h.activities.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if record == nil || record.UserID != middleware.UserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "activity not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// Delete removes an activity and recomputes the affected day.
// DELETE /api/v1/activities/:id
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.ingest.DeleteActivity(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Daily returns the per-day aggregates in a date range, for the calendar view.
// Days with no activity have no entry.
// GET /api/v1/activities/daily?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handlers) Daily(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required"})
		return
	}
	for _, d := range []string{from, to} {
		if _, err := time.Parse(activity.DateLayout, d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be in YYYY-MM-DD format"})
			return
		}
	}
	if from > to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must not be after to"})
		return
	}

	days, err := h.activities.ListDaily(c.Request.Context(), middleware.UserID(c), from, to)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":               days,
		"min_valid_duration": activity.MinValidMinutes,
	})
}

// Streak returns the caller's streak state. Users with no valid days yet get
// zeros rather than 404.
// GET /api/v1/me/streak
func (h *Handlers) Streak(c *gin.Context) {
	userID := middleware.UserID(c)

	streak, err := h.streaks.GetByUser(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	totalValidDays, err := h.activities.CountValidDays(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	resp := gin.H{
		"current_streak":     0,
		"longest_streak":     0,
		"last_activity_date": nil,
		"total_valid_days":   totalValidDays,
	}
	if streak != nil {
		resp["current_streak"] = streak.CurrentStreak
		resp["longest_streak"] = streak.LongestStreak
		resp["last_activity_date"] = streak.LastActivityDate
	}

	c.JSON(http.StatusOK, resp)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
