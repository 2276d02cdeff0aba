package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
)

// LeaderboardRepository builds ranked leaderboards from streak records
type LeaderboardRepository struct {
	db *sqlx.DB
}

// NewLeaderboardRepository creates a new LeaderboardRepository
func NewLeaderboardRepository(db *sqlx.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

const leaderboardOrder = `
	ORDER BY s.current_streak DESC, s.longest_streak DESC, total_valid_days DESC
`

// Global retrieves the global leaderboard. Only profiles that opted in with
// is_public are listed.
func (r *LeaderboardRepository) Global(ctx context.Context, limit, offset int) ([]*models.LeaderboardEntry, error) {
	query := `
		SELECT s.user_id, p.username, p.avatar_url,
		       s.current_streak, s.longest_streak,
		       (SELECT COUNT(*) FROM daily_activities d
		        WHERE d.user_id = s.user_id AND d.is_valid = true) AS total_valid_days
		FROM streaks s
		JOIN profiles p ON p.id = s.user_id
		WHERE p.is_public = true
	` + leaderboardOrder + `
		LIMIT $1 OFFSET $2
	`

	entries := make([]*models.LeaderboardEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, limit, offset); err != nil {
		return nil, err
	}
	rank(entries, offset)
	return entries, nil
}

// Organization retrieves the leaderboard scoped to an organization's members.
// Membership implies visibility; is_public only governs the global board.
func (r *LeaderboardRepository) Organization(ctx context.Context, orgID string, limit, offset int) ([]*models.LeaderboardEntry, error) {
	query := `
		SELECT s.user_id, p.username, p.avatar_url,
		       s.current_streak, s.longest_streak,
		       (SELECT COUNT(*) FROM daily_activities d
		        WHERE d.user_id = s.user_id AND d.is_valid = true) AS total_valid_days
		FROM streaks s
		JOIN profiles p ON p.id = s.user_id
		JOIN organization_members m ON m.user_id = s.user_id
		WHERE m.organization_id = $1
	` + leaderboardOrder + `
		LIMIT $2 OFFSET $3
	`

	entries := make([]*models.LeaderboardEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, orgID, limit, offset); err != nil {
		return nil, err
	}
	rank(entries, offset)
	return entries, nil
}

func rank(entries []*models.LeaderboardEntry, offset int) {
	for i, e := range entries {
		e.Rank = offset + i + 1
	}
}
