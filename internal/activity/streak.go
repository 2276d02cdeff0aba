// Package activity implements the scoring rules of the challenge: which days
// count, how daily totals are aggregated, and how streaks are computed.
package activity

import "time"

// DateLayout is the calendar date format used throughout the system.
// Activities belong to a local calendar date, never to an instant.
const DateLayout = "2006-01-02"

// MinValidMinutes is the daily activity threshold. A day counts toward the
// streak only when the summed duration reaches it.
const MinValidMinutes = 30

// StreakResult holds the outcome of a streak computation
type StreakResult struct {
	Current          int
	Longest          int
	LastActivityDate string // empty when the user has no valid days
}

// ComputeStreak derives streak values from the ascending list of valid dates.
//
// The longest streak is the longest run of consecutive dates anywhere in the
// history. The current streak is the run ending at the most recent valid date,
// but only while that run is still alive: the most recent valid date must be
// today or yesterday. A gap of two or more days resets the current streak to
// zero without touching the longest.
func ComputeStreak(validDates []string, today time.Time) StreakResult {
	if len(validDates) == 0 {
		return StreakResult{}
	}

	longest := 1
	run := 1
	for i := 1; i < len(validDates); i++ {
		if daysBetween(validDates[i-1], validDates[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	last := validDates[len(validDates)-1]
	current := 0
	if gap := daysBetween(last, today.Format(DateLayout)); gap >= 0 && gap <= 1 {
		current = run
	}
	if current > longest {
		longest = current
	}

	return StreakResult{Current: current, Longest: longest, LastActivityDate: last}
}

// daysBetween returns the whole days from a to b; negative when b precedes a.
// Malformed dates compare as non-adjacent.
func daysBetween(a, b string) int {
	ta, err1 := time.Parse(DateLayout, a)
	tb, err2 := time.Parse(DateLayout, b)
	if err1 != nil || err2 != nil {
		return 1 << 20
	}
	return int(tb.Sub(ta).Hours() / 24)
}
