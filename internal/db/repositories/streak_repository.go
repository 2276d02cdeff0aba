package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
)

// StreakRepository handles streak database operations
type StreakRepository struct {
	db *sqlx.DB
}

// NewStreakRepository creates a new StreakRepository
func NewStreakRepository(db *sqlx.DB) *StreakRepository {
	return &StreakRepository{db: db}
}

// GetByUser retrieves a user's streak record, or nil if none exists yet
func (r *StreakRepository) GetByUser(ctx context.Context, userID string) (*models.Streak, error) {
	query := `
		SELECT id, user_id, current_streak, longest_streak,
		       to_char(last_activity_date, 'YYYY-MM-DD') AS last_activity_date, updated_at
		FROM streaks
		WHERE user_id = $1
	`

	streak := &models.Streak{}
	err := r.db.GetContext(ctx, streak, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return streak, nil
}

// Upsert writes a user's computed streak. lastActivityDate may be empty when
// the user has no valid days.
func (r *StreakRepository) Upsert(ctx context.Context, userID string, current, longest int, lastActivityDate string) error {
	query := `
		INSERT INTO streaks (id, user_id, current_streak, longest_streak, last_activity_date, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::date, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET current_streak = EXCLUDED.current_streak,
		              longest_streak = EXCLUDED.longest_streak,
		              last_activity_date = EXCLUDED.last_activity_date,
		              updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), userID, current, longest, lastActivityDate)
	return err
}
