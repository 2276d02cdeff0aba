// Package leaderboard implements the ranking endpoints. The global board is
// public and shows only public profiles; an organization board shows all of
// that organization's members but is visible to members only.
package leaderboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/api/respond"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Handlers implements the /leaderboard endpoint
type Handlers struct {
	leaderboard *repositories.LeaderboardRepository
	orgs        *repositories.OrganizationRepository
}

// NewHandlers creates the leaderboard handlers
func NewHandlers(leaderboard *repositories.LeaderboardRepository, orgs *repositories.OrganizationRepository) *Handlers {
	return &Handlers{leaderboard: leaderboard, orgs: orgs}
}

// Get returns the leaderboard for the request's scope. On the base domain
// this is the global board; on an organization subdomain it is that
// organization's board, members only.
// GET /api/v1/leaderboard?limit=&offset=
func (h *Handlers) Get(c *gin.Context) {
	limit, offset := pagination(c)

	orgID := middleware.OrgID(c)
	if orgID == "" {
		entries, err := h.leaderboard.Global(c.Request.Context(), limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}
		writeBoard(c, "global", entries, limit, offset)
		return
	}

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	member, err := h.orgs.GetMember(c.Request.Context(), orgID, userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if member == nil && !isPlatformAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this organization"})
		return
	}

	entries, err := h.leaderboard.Organization(c.Request.Context(), orgID, limit, offset)
	if err != nil {
		respond.Error(c, err)
		return
	}
	writeBoard(c, "organization", entries, limit, offset)
}

func writeBoard(c *gin.Context, scope string, entries []*models.LeaderboardEntry, limit, offset int) {
	c.JSON(http.StatusOK, gin.H{
		"scope":   scope,
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

func isPlatformAdmin(c *gin.Context) bool {
	if v, ok := c.Get(middleware.ContextUser); ok {
		if profile, ok := v.(*models.Profile); ok {
			return profile.IsPlatformAdmin
		}
	}
	return false
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
