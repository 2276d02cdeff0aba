// Package profiles implements the /me endpoints: viewing and updating the
// caller's profile, avatar upload, and account deletion.
package profiles

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/api/respond"
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
	"github.com/thirtyx30/thirtyx30/internal/storage"
)

// MaxAvatarBytes caps avatar uploads
const MaxAvatarBytes = 5 << 20 // 5 MiB

// avatarURLTTL is how long a signed avatar URL stays valid on cloud backends
const avatarURLTTL = 24 * time.Hour

var avatarExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// Handlers implements the /me endpoints
type Handlers struct {
	cfg      *config.Config
	profiles *repositories.ProfileRepository
	store    storage.Store
}

// NewHandlers creates the profile handlers
func NewHandlers(cfg *config.Config, profiles *repositories.ProfileRepository, store storage.Store) *Handlers {
	return &Handlers{cfg: cfg, profiles: profiles, store: store}
}

// Me returns the caller's profile.
// GET /api/v1/me
func (h *Handlers) Me(c *gin.Context) {
	v, ok := c.Get(middleware.ContextUser)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	profile := v.(*models.Profile)

	c.JSON(http.StatusOK, gin.H{
		"id":           profile.ID,
		"email":        profile.Email,
		"username":     profile.Username,
		"display_name": profile.DisplayName(),
		"avatar_url":   profile.AvatarURL,
		"is_public":    profile.IsPublic,
	})
}

type updateRequest struct {
	Username *string `json:"username"`
	IsPublic *bool   `json:"is_public"`
}

// Update changes the caller's username or leaderboard visibility.
// PUT /api/v1/me
func (h *Handlers) Update(c *gin.Context) {
	v, _ := c.Get(middleware.ContextUser)
	profile := v.(*models.Profile)

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" {
			profile.Username = nil
		} else {
			if len(username) > 60 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "username must be at most 60 characters"})
				return
			}
			profile.Username = &username
		}
	}
	if req.IsPublic != nil {
		profile.IsPublic = *req.IsPublic
	}

	if err := h.profiles.Update(c.Request.Context(), profile); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           profile.ID,
		"username":     profile.Username,
		"display_name": profile.DisplayName(),
		"is_public":    profile.IsPublic,
	})
}

// UploadAvatar stores a new avatar image and updates the profile's URL.
// POST /api/v1/me/avatar  (multipart field "avatar")
func (h *Handlers) UploadAvatar(c *gin.Context) {
	userID := middleware.UserID(c)

	file, header, err := c.Request.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file is required"})
		return
	}
	defer file.Close()

	if header.Size > MaxAvatarBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar must be at most 5 MiB"})
		return
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	contentType, ok := avatarExtensions[ext]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar must be a png, jpeg, or webp image"})
		return
	}

	storagePath := fmt.Sprintf("avatars/%s%s", userID, ext)
	result, err := h.store.Put(c.Request.Context(), storagePath, file, header.Size, contentType)
	if err != nil {
		slog.Error("avatar upload failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store avatar"})
		return
	}

	url, err := h.store.URL(c.Request.Context(), storagePath, avatarURLTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve avatar URL"})
		return
	}

	if err := h.profiles.UpdateAvatarURL(c.Request.Context(), userID, url); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"avatar_url": url,
		"size":       result.Size,
		"checksum":   result.Checksum,
	})
}

// Delete removes the caller's account. The database cascades to activities,
// streaks, memberships, invitations, and provider connections.
// DELETE /api/v1/me
func (h *Handlers) Delete(c *gin.Context) {
	userID := middleware.UserID(c)

	if err := h.profiles.Delete(c.Request.Context(), userID); err != nil {
		respond.Error(c, err)
		return
	}

	domain := h.cfg.Auth.CookieDomain
	secure := h.cfg.Auth.SecureCookies
	c.SetCookie(middleware.CookieAccessToken, "", -1, "/", domain, secure, true)
	c.SetCookie(middleware.CookieRefreshToken, "", -1, "/", domain, secure, true)

	slog.Info("account deleted", "user_id", userID)
	c.Status(http.StatusNoContent)
}

// ServeFile serves objects from the local storage backend, used for avatar
// URLs when no cloud storage is configured. Path traversal is blocked by the
// storage layer joining within its base path.
// GET /api/v1/files/*filepath
func (h *Handlers) ServeFile(c *gin.Context) {
	filePath := strings.TrimPrefix(c.Param("filepath"), "/")
	if filePath == "" || strings.Contains(filePath, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}

	reader, err := h.store.Open(c.Request.Context(), filePath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	defer reader.Close()

	contentType := avatarExtensions[strings.ToLower(path.Ext(filePath))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.DataFromReader(http.StatusOK, -1, contentType, reader, nil)
}
