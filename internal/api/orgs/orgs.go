// Package orgs implements organization management: creation, settings,
// membership, and email invitations.
package orgs

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/api/respond"
	"github.com/thirtyx30/thirtyx30/internal/auth"
	"github.com/thirtyx30/thirtyx30/internal/config"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/middleware"
	"github.com/thirtyx30/thirtyx30/internal/tenant"
)

// InvitationTTL is how long an invitation stays acceptable
const InvitationTTL = 7 * 24 * time.Hour

// Handlers implements the /orgs endpoints
type Handlers struct {
	cfg         *config.Config
	orgs        *repositories.OrganizationRepository
	invitations *repositories.InvitationRepository
}

// NewHandlers creates the organization handlers
func NewHandlers(cfg *config.Config, orgs *repositories.OrganizationRepository, invitations *repositories.InvitationRepository) *Handlers {
	return &Handlers{cfg: cfg, orgs: orgs, invitations: invitations}
}

type createRequest struct {
	Name        string  `json:"name" binding:"required"`
	Slug        string  `json:"slug" binding:"required"`
	Description *string `json:"description"`
}

// Create registers a new organization with the caller as owner. The slug
// becomes the organization's subdomain and cannot be changed afterwards.
// POST /api/v1/orgs
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	slug := tenant.NormalizeSlug(req.Slug)
	if err := tenant.ValidateSlug(slug); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := h.orgs.SlugExists(c.Request.Context(), slug)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "slug is already taken"})
		return
	}

	userID := middleware.UserID(c)
	org := &models.Organization{
		Name:        strings.TrimSpace(req.Name),
		Slug:        slug,
		Description: req.Description,
		IsActive:    true,
		CreatedBy:   userID,
	}
	if org.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if err := h.orgs.Create(c.Request.Context(), org); err != nil {
		respond.Error(c, err)
		return
	}

	owner := &models.OrganizationMember{
		OrganizationID: org.ID,
		UserID:         userID,
		Role:           string(auth.RoleOwner),
	}
	if err := h.orgs.AddMember(c.Request.Context(), owner); err != nil {
		respond.Error(c, err)
		return
	}

	slog.Info("organization created", "org_id", org.ID, "slug", org.Slug, "created_by", userID)
	c.JSON(http.StatusCreated, org)
}

// ListMine returns the organizations the caller belongs to.
// GET /api/v1/orgs
func (h *Handlers) ListMine(c *gin.Context) {
	items, err := h.orgs.ListByUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": items})
}

// ListAll returns every organization on the platform, paginated.
// Platform admins only.
// GET /api/v1/admin/orgs?limit=&offset=
func (h *Handlers) ListAll(c *gin.Context) {
	if !isPlatformAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "platform admin access required"})
		return
	}

	limit := 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "")); err == nil && v > 0 {
		offset = v
	}

	items, err := h.orgs.ListAll(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": items, "limit": limit, "offset": offset})
}

func isPlatformAdmin(c *gin.Context) bool {
	if v, ok := c.Get(middleware.ContextUser); ok {
		if profile, ok := v.(*models.Profile); ok {
			return profile.IsPlatformAdmin
		}
	}
	return false
}

// Get returns one organization. Requires membership (enforced in routing).
// GET /api/v1/orgs/:org_id
func (h *Handlers) Get(c *gin.Context) {
	org, err := h.orgs.GetByID(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	count, err := h.orgs.CountMembers(c.Request.Context(), org.ID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organization": org, "member_count": count})
}

type updateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// Update changes organization settings. Owner only. The slug is immutable
// because members may have bookmarked the subdomain.
// PUT /api/v1/orgs/:org_id
func (h *Handlers) Update(c *gin.Context) {
	org, err := h.orgs.GetByID(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		org.Name = name
	}
	if req.Description != nil {
		org.Description = req.Description
	}
	if req.IsActive != nil {
		org.IsActive = *req.IsActive
	}

	if err := h.orgs.Update(c.Request.Context(), org); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

// ListMembers returns the organization roster, owners first.
// GET /api/v1/orgs/:org_id/members
func (h *Handlers) ListMembers(c *gin.Context) {
	members, err := h.orgs.ListMembers(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateMemberRole changes a member's role. Admins may only assign member;
// owners may assign any role. Demoting the last owner is rejected so the
// organization always has one.
// PUT /api/v1/orgs/:org_id/members/:user_id
func (h *Handlers) UpdateMemberRole(c *gin.Context) {
	orgID := c.Param("org_id")
	targetID := c.Param("user_id")

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	newRole := auth.Role(req.Role)
	if !newRole.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be owner, admin, or member"})
		return
	}

	actorRole := middleware.MemberRole(c)
	if !actorRole.CanAssign(newRole) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role to assign " + string(newRole)})
		return
	}

	target, err := h.orgs.GetMember(c.Request.Context(), orgID, targetID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		return
	}
	if !actorRole.CanAssign(auth.Role(target.Role)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role to modify this member"})
		return
	}

	if target.Role == string(auth.RoleOwner) && newRole != auth.RoleOwner {
		owners, err := h.orgs.CountOwners(c.Request.Context(), orgID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if owners <= 1 {
			c.JSON(http.StatusConflict, gin.H{"error": "organization must keep at least one owner"})
			return
		}
	}

	if err := h.orgs.UpdateMemberRole(c.Request.Context(), orgID, targetID, string(newRole)); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": targetID, "role": string(newRole)})
}

// RemoveMember removes a member from the organization. Members may remove
// themselves (leave); admins and owners may remove members they outrank. The
// last owner cannot leave.
// DELETE /api/v1/orgs/:org_id/members/:user_id
func (h *Handlers) RemoveMember(c *gin.Context) {
	orgID := c.Param("org_id")
	targetID := c.Param("user_id")
	actorID := middleware.UserID(c)

	target, err := h.orgs.GetMember(c.Request.Context(), orgID, targetID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		return
	}

	if targetID != actorID {
		actorRole := middleware.MemberRole(c)
		if !actorRole.CanManageMembers() || !actorRole.CanAssign(auth.Role(target.Role)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role to remove this member"})
			return
		}
	}

	if target.Role == string(auth.RoleOwner) {
		owners, err := h.orgs.CountOwners(c.Request.Context(), orgID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if owners <= 1 {
			c.JSON(http.StatusConflict, gin.H{"error": "organization must keep at least one owner"})
			return
		}
	}

	if err := h.orgs.RemoveMember(c.Request.Context(), orgID, targetID); err != nil {
		respond.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type inviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// CreateInvitation issues a single-use email invitation. The returned URL is
// what would be mailed out; mail delivery itself is out of process.
// POST /api/v1/orgs/:org_id/invitations
func (h *Handlers) CreateInvitation(c *gin.Context) {
	orgID := c.Param("org_id")

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	role := req.Role
	if role == "" {
		role = string(auth.RoleMember)
	}
	if !auth.Role(role).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be owner, admin, or member"})
		return
	}
	if !middleware.MemberRole(c).CanAssign(auth.Role(role)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role to invite as " + role})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	pending, err := h.invitations.GetPendingByEmail(c.Request.Context(), orgID, email)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if pending != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "an invitation for this email is already pending"})
		return
	}

	token, err := generateInvitationToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate invitation token"})
		return
	}

	inv := &models.OrganizationInvitation{
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		InvitedBy:      middleware.UserID(c),
		Token:          token,
		ExpiresAt:      time.Now().Add(InvitationTTL),
	}
	if err := h.invitations.Create(c.Request.Context(), inv); err != nil {
		respond.Error(c, err)
		return
	}

	slog.Info("invitation created", "org_id", orgID, "invited_by", inv.InvitedBy)
	c.JSON(http.StatusCreated, gin.H{
		"invitation": inv,
		"accept_url": h.cfg.Server.GetPublicURL() + "/invitations/accept?token=" + token,
	})
}

// ListInvitations returns the organization's invitations, pending first.
// GET /api/v1/orgs/:org_id/invitations
func (h *Handlers) ListInvitations(c *gin.Context) {
	items, err := h.invitations.ListByOrganization(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": items})
}

// RevokeInvitation deletes an invitation.
// DELETE /api/v1/orgs/:org_id/invitations/:invitation_id
func (h *Handlers) RevokeInvitation(c *gin.Context) {
	deleted, err := h.invitations.Delete(c.Request.Context(), c.Param("org_id"), c.Param("invitation_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type acceptRequest struct {
	Token string `json:"token" binding:"required"`
}

// AcceptInvitation redeems an invitation token for the authenticated user.
// The invitation email must match the caller's login email; acceptance is
// atomic so a token can only be used once even under concurrent requests.
// POST /api/v1/invitations/accept
func (h *Handlers) AcceptInvitation(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	inv, err := h.invitations.GetByToken(c.Request.Context(), req.Token)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
		return
	}
	if inv.IsAccepted() {
		c.JSON(http.StatusConflict, gin.H{"error": "invitation has already been used"})
		return
	}
	if inv.IsExpired(time.Now()) {
		c.JSON(http.StatusGone, gin.H{"error": "invitation has expired"})
		return
	}

	user, ok := c.Get(middleware.ContextUser)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	profile := user.(*models.Profile)
	if !strings.EqualFold(profile.Email, inv.Email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invitation was issued to a different email address"})
		return
	}

	existing, err := h.orgs.GetMember(c.Request.Context(), inv.OrganizationID, profile.ID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "already a member of this organization"})
		return
	}

	accepted, err := h.invitations.MarkAccepted(c.Request.Context(), inv.ID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if !accepted {
		c.JSON(http.StatusConflict, gin.H{"error": "invitation is no longer valid"})
		return
	}

	member := &models.OrganizationMember{
		OrganizationID: inv.OrganizationID,
		UserID:         profile.ID,
		Role:           inv.Role,
		InvitedBy:      &inv.InvitedBy,
	}
	if err := h.orgs.AddMember(c.Request.Context(), member); err != nil {
		respond.Error(c, err)
		return
	}

	org, err := h.orgs.GetByID(c.Request.Context(), inv.OrganizationID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	slog.Info("invitation accepted", "org_id", inv.OrganizationID, "user_id", profile.ID)
	c.JSON(http.StatusOK, gin.H{"organization": org, "role": inv.Role})
}

func generateInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
