// Package models - provider_connection.go defines the stored link between a user
// and an external fitness provider account. Token fields hold ciphertext; the
// crypto package encrypts before save and decrypts after load.
package models

import "time"

// ProviderConnection represents an authorized link to a fitness provider
type ProviderConnection struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Provider       string    `db:"provider" json:"provider"` // strava or garmin
	ProviderUserID string    `db:"provider_user_id" json:"provider_user_id"`
	AccessToken    string    `db:"access_token" json:"-"`       // encrypted at rest
	RefreshToken   string    `db:"refresh_token" json:"-"`      // encrypted at rest
	ExpiresAt      int64     `db:"expires_at" json:"expires_at"` // unix seconds; 0 for non-expiring (OAuth1) tokens
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TokenExpired reports whether the access token needs refreshing before use.
// A small margin avoids using a token that expires mid-request.
func (c *ProviderConnection) TokenExpired(now time.Time) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= c.ExpiresAt-60
}
