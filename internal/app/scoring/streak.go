package scoring

import "stepleague/internal/domain/model"

// CurrentStreak counts consecutive submitted days ending today, or yesterday when
// today has no submission yet.
func CurrentStreak(dates []model.Date, today model.Date) int {
	have := make(map[string]bool, len(dates))
	for _, d := range dates {
		have[d.String()] = true
	}

	cur := today
	if !have[cur.String()] {
		cur = today.AddDays(-1)
	}
	streak := 0
	for have[cur.String()] {
		streak++
		cur = cur.AddDays(-1)
	}
	return streak
}
