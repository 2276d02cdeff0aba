package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thirtyx30/thirtyx30/internal/db/repositories"
	"github.com/thirtyx30/thirtyx30/internal/telemetry"
)

// Recomputer maintains the derived state (daily aggregates and streaks) for a
// user. Every mutation of activity rows is followed by a recompute of the
// affected dates; the daily_activities and streaks tables are never written
// directly by handlers.
type Recomputer struct {
	activities *repositories.ActivityRepository
	streaks    *repositories.StreakRepository
	now        func() time.Time
}

// NewRecomputer creates a Recomputer
func NewRecomputer(activities *repositories.ActivityRepository, streaks *repositories.StreakRepository) *Recomputer {
	return &Recomputer{
		activities: activities,
		streaks:    streaks,
		now:        time.Now,
	}
}

// RecomputeDate refreshes the daily aggregate for one date and then the user's
// streak. A date whose summed duration drops to zero loses its aggregate row
// entirely, matching the invariant that rows only exist for days with logged
// activity.
func (r *Recomputer) RecomputeDate(ctx context.Context, userID, date string) error {
	start := time.Now()
	defer func() {
		telemetry.StreakRecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	total, err := r.activities.SumDurationForDate(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("summing activities for %s: %w", date, err)
	}

	if total > 0 {
		if err := r.activities.UpsertDaily(ctx, userID, date, total, total >= MinValidMinutes); err != nil {
			return fmt.Errorf("upserting daily aggregate for %s: %w", date, err)
		}
	} else {
		if err := r.activities.DeleteDaily(ctx, userID, date); err != nil {
			return fmt.Errorf("deleting daily aggregate for %s: %w", date, err)
		}
	}

	return r.recomputeStreak(ctx, userID)
}

// RecomputeDates refreshes aggregates for several dates (a provider sync can
// touch many) and recomputes the streak once at the end.
func (r *Recomputer) RecomputeDates(ctx context.Context, userID string, dates []string) error {
	seen := make(map[string]bool, len(dates))
	for _, date := range dates {
		if seen[date] {
			continue
		}
		seen[date] = true

		total, err := r.activities.SumDurationForDate(ctx, userID, date)
		if err != nil {
			return fmt.Errorf("summing activities for %s: %w", date, err)
		}
		if total > 0 {
			if err := r.activities.UpsertDaily(ctx, userID, date, total, total >= MinValidMinutes); err != nil {
				return fmt.Errorf("upserting daily aggregate for %s: %w", date, err)
			}
		} else {
			if err := r.activities.DeleteDaily(ctx, userID, date); err != nil {
				return fmt.Errorf("deleting daily aggregate for %s: %w", date, err)
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	return r.recomputeStreak(ctx, userID)
}

func (r *Recomputer) recomputeStreak(ctx context.Context, userID string) error {
	dates, err := r.activities.ListValidDates(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing valid dates: %w", err)
	}

	result := ComputeStreak(dates, r.now())
	if err := r.streaks.Upsert(ctx, userID, result.Current, result.Longest, result.LastActivityDate); err != nil {
		return fmt.Errorf("storing streak: %w", err)
	}

	slog.Debug("streak recomputed",
		"user_id", userID,
		"current", result.Current,
		"longest", result.Longest,
	)
	return nil
}
