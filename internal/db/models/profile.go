// Package models - profile.go defines the Profile model for challenge participants
// with email, optional public username, and OIDC subject.
package models

import "time"

// Profile represents a participant account
type Profile struct {
	ID              string    `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	Username        *string   `db:"username" json:"username"` // shown on leaderboards when set
	AvatarURL       *string   `db:"avatar_url" json:"avatar_url"`
	IsPublic        bool      `db:"is_public" json:"is_public"` // opt-in to the global leaderboard
	IsPlatformAdmin bool      `db:"is_platform_admin" json:"is_platform_admin"`
	OIDCSub         *string   `db:"oidc_sub" json:"-"` // OIDC subject identifier (unique per provider)
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName returns the name to show publicly: the username when set,
// otherwise the local part of the email address.
func (p *Profile) DisplayName() string {
	if p.Username != nil && *p.Username != "" {
		return *p.Username
	}
	for i := 0; i < len(p.Email); i++ {
		if p.Email[i] == '@' {
			return p.Email[:i]
		}
	}
	return p.Email
}
