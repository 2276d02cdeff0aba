// Package models - activity.go defines the canonical Activity record and the
// per-day DailyActivity aggregate derived from it.
package models

import "time"

// Activity sources. Provider-sourced rows carry the provider's activity id in
// ExternalActivityID; manual rows leave it nil.
const (
	SourceManual = "manual"
	SourceStrava = "strava"
	SourceGarmin = "garmin"
)

// Activity represents a single logged activity, regardless of origin
type Activity struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"user_id"`
	Source             string    `db:"source" json:"source"`
	ExternalActivityID *string   `db:"external_activity_id" json:"external_activity_id,omitempty"`
	ActivityDate       string    `db:"activity_date" json:"date"` // calendar date, YYYY-MM-DD
	DurationMinutes    int       `db:"duration_minutes" json:"duration_minutes"`
	ActivityType       string    `db:"activity_type" json:"type"`
	ActivityName       string    `db:"activity_name" json:"name"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	OrganizationID     *string   `db:"organization_id" json:"organization_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// DailyActivity is the per-user, per-date aggregate of all activity rows.
// A row exists only when the summed duration is positive; is_valid marks
// whether the day counts toward the streak.
type DailyActivity struct {
	ID                   string    `db:"id" json:"id"`
	UserID               string    `db:"user_id" json:"user_id"`
	ActivityDate         string    `db:"activity_date" json:"date"`
	TotalDurationMinutes int       `db:"total_duration_minutes" json:"total_duration_minutes"`
	IsValid              bool      `db:"is_valid" json:"is_valid"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
