// Package models - streak.go defines the per-user Streak record and the
// leaderboard row shape derived from it.
package models

import "time"

// Streak tracks consecutive valid days for one user
type Streak struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	CurrentStreak    int       `db:"current_streak" json:"current_streak"`
	LongestStreak    int       `db:"longest_streak" json:"longest_streak"`
	LastActivityDate *string   `db:"last_activity_date" json:"last_activity_date"` // YYYY-MM-DD of most recent valid day
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LeaderboardEntry is one ranked row of a leaderboard. Rank is assigned after
// ordering by current streak, then longest streak, then total valid days.
type LeaderboardEntry struct {
	Rank           int     `db:"-" json:"rank"`
	UserID         string  `db:"user_id" json:"user_id"`
	Username       *string `db:"username" json:"username"`
	AvatarURL      *string `db:"avatar_url" json:"avatar_url,omitempty"`
	CurrentStreak  int     `db:"current_streak" json:"current_streak"`
	LongestStreak  int     `db:"longest_streak" json:"longest_streak"`
	TotalValidDays int     `db:"total_valid_days" json:"total_valid_days"`
}
