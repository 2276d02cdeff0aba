// Package models - organization.go defines the Organization model representing a tenant
// namespace addressed by subdomain slug, plus membership and invitation records.
package models

import "time"

// Organization represents a tenant organization
type Organization struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"` // URL-safe name (used as the subdomain)
	Description *string   `db:"description" json:"description,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OrganizationMember represents a user's membership in an organization
type OrganizationMember struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Role           string    `db:"role" json:"role"` // owner, admin, or member
	InvitedBy      *string   `db:"invited_by" json:"invited_by,omitempty"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
}

// MemberWithProfile joins a membership row with the member's profile fields
// for org roster listings.
type MemberWithProfile struct {
	OrganizationMember
	Email     string  `db:"email" json:"email"`
	Username  *string `db:"username" json:"username"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// OrganizationInvitation represents a pending or accepted email invitation.
// The token never appears in API responses; handlers return an accept URL
// to the inviter instead.
type OrganizationInvitation struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Email          string     `db:"email" json:"email"`
	Role           string     `db:"role" json:"role"`
	InvitedBy      string     `db:"invited_by" json:"invited_by"`
	Token          string     `db:"token" json:"-"` // single-use, URL-safe
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt     *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the invitation can no longer be accepted.
func (i *OrganizationInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsAccepted reports whether the invitation has already been used.
func (i *OrganizationInvitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}
