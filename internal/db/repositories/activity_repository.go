package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
)

// ActivityRepository handles activity and daily aggregate database operations
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create creates a new activity record
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	activity.ID = uuid.New().String()
	activity.CreatedAt = time.Now()

	query := `
		INSERT INTO activities (id, user_id, source, external_activity_id, activity_date,
		                        duration_minutes, activity_type, activity_name, notes,
		                        organization_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		activity.ID,
		activity.UserID,
		activity.Source,
		activity.ExternalActivityID,
		activity.ActivityDate,
		activity.DurationMinutes,
		activity.ActivityType,
		activity.ActivityName,
		activity.Notes,
		activity.OrganizationID,
		activity.CreatedAt,
	)

	return err
}

// GetByID retrieves an activity by ID
func (r *ActivityRepository) GetByID(ctx context.Context, activityID string) (*models.Activity, error) {
	query := `
		SELECT id, user_id, source, external_activity_id, to_char(activity_date, 'YYYY-MM-DD') AS activity_date,
		       duration_minutes, activity_type, activity_name, notes, organization_id, created_at
		FROM activities
		WHERE id = $1
	`

	activity := &models.Activity{}
	err := r.db.GetContext(ctx, activity, query, activityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return activity, nil
}

// ExternalIDExists reports whether a provider activity has already been
// ingested for the user. Used for webhook and sync dedup.
func (r *ActivityRepository) ExternalIDExists(ctx context.Context, userID, source, externalID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM activities
			WHERE user_id = $1 AND source = $2 AND external_activity_id = $3
		)
	`
	err := r.db.GetContext(ctx, &exists, query, userID, source, externalID)
	return exists, err
}

// ListByUser retrieves a user's activities within an optional date range,
// newest date first. Zero-value bounds are open.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID, fromDate, toDate string, limit, offset int) ([]*models.Activity, error) {
	query := `
		SELECT id, user_id, source, external_activity_id, to_char(activity_date, 'YYYY-MM-DD') AS activity_date,
		       duration_minutes, activity_type, activity_name, notes, organization_id, created_at
		FROM activities
		WHERE user_id = $1
		  AND ($2 = '' OR activity_date >= $2::date)
		  AND ($3 = '' OR activity_date <= $3::date)
		ORDER BY activity_date DESC, created_at DESC
		LIMIT $4 OFFSET $5
	`

	activities := make([]*models.Activity, 0)
	if err := r.db.SelectContext(ctx, &activities, query, userID, fromDate, toDate, limit, offset); err != nil {
		return nil, err
	}
	return activities, nil
}

// Delete deletes an activity and returns whether a row was removed
func (r *ActivityRepository) Delete(ctx context.Context, activityID string) (bool, error) {
	query := `DELETE FROM activities WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, activityID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SumDurationForDate returns the total logged minutes for a user on one date
func (r *ActivityRepository) SumDurationForDate(ctx context.Context, userID, date string) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(duration_minutes), 0)
		FROM activities
		WHERE user_id = $1 AND activity_date = $2::date
	`
	err := r.db.GetContext(ctx, &total, query, userID, date)
	return total, err
}

// UpsertDaily writes the per-day aggregate for a user and date
func (r *ActivityRepository) UpsertDaily(ctx context.Context, userID, date string, totalMinutes int, isValid bool) error {
	query := `
		INSERT INTO daily_activities (id, user_id, activity_date, total_duration_minutes, is_valid, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id, activity_date)
		DO UPDATE SET total_duration_minutes = EXCLUDED.total_duration_minutes,
		              is_valid = EXCLUDED.is_valid,
		              updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), userID, date, totalMinutes, isValid)
	return err
}

// DeleteDaily removes the aggregate row for a date. Called when the date's
// summed duration drops to zero.
func (r *ActivityRepository) DeleteDaily(ctx context.Context, userID, date string) error {
	query := `DELETE FROM daily_activities WHERE user_id = $1 AND activity_date = $2::date`
	_, err := r.db.ExecContext(ctx, query, userID, date)
	return err
}

// ListValidDates retrieves the ascending list of valid activity dates for a
// user. This is the input to streak computation.
func (r *ActivityRepository) ListValidDates(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT to_char(activity_date, 'YYYY-MM-DD')
		FROM daily_activities
		WHERE user_id = $1 AND is_valid = true
		ORDER BY activity_date
	`

	dates := make([]string, 0)
	if err := r.db.SelectContext(ctx, &dates, query, userID); err != nil {
		return nil, err
	}
	return dates, nil
}

// ListDaily retrieves a user's daily aggregates within a date range, for
// calendar views
func (r *ActivityRepository) ListDaily(ctx context.Context, userID, fromDate, toDate string) ([]*models.DailyActivity, error) {
	query := `
		SELECT id, user_id, to_char(activity_date, 'YYYY-MM-DD') AS activity_date,
		       total_duration_minutes, is_valid, created_at, updated_at
		FROM daily_activities
		WHERE user_id = $1 AND activity_date BETWEEN $2::date AND $3::date
		ORDER BY activity_date
	`

	days := make([]*models.DailyActivity, 0)
	if err := r.db.SelectContext(ctx, &days, query, userID, fromDate, toDate); err != nil {
		return nil, err
	}
	return days, nil
}

// CountValidDays returns the user's total number of valid days
func (r *ActivityRepository) CountValidDays(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM daily_activities WHERE user_id = $1 AND is_valid = true`
	err := r.db.GetContext(ctx, &count, query, userID)
	return count, err
}
