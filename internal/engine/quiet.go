package engine

import (
	"time"

	"market-news-alerts/internal/model"
)

// inQuietHours reports whether now falls inside the user's quiet-hours window
// resolved in the window's own timezone. Windows may wrap midnight. An
// unresolvable timezone or malformed clock fails open: validation rejects
// those at Put time, and suppressing all alerts on a stale record is worse
// than ignoring the window.
func inQuietHours(q *model.QuietHours, now time.Time) bool {
	if q == nil {
		return false
	}
	start, err := model.ParseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := model.ParseClock(q.End)
	if err != nil {
		return false
	}
	if start == end {
		return false
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return false
	}

	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()
	if start < end {
		return minutes >= start && minutes < end
	}
	// wraps midnight, e.g. 22:00-07:00
	return minutes >= start || minutes < end
}
