package scoring

import (
	"fmt"
	"math"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

const (
	GroupByDay      = "day"
	GroupByThreeDay = "3days"
	GroupByFiveDay  = "5days"
	GroupByWeek     = "week"
	GroupByMonth    = "month"
)

// GroupSize returns the bucket width in days. "month" buckets by single day.
func GroupSize(groupBy string) (int, error) {
	switch groupBy {
	case "", GroupByDay, GroupByMonth:
		return 1, nil
	case GroupByThreeDay:
		return 3, nil
	case GroupByFiveDay:
		return 5, nil
	case GroupByWeek:
		return 7, nil
	}
	return 0, fmt.Errorf("unknown group %q: %w", groupBy, common.ErrValidation)
}

// MaxRangeDays bounds any leaderboard or breakdown window.
const MaxRangeDays = 366 * 5

// ValidateRange fails when end is before start or the range exceeds MaxRangeDays.
func ValidateRange(start, end model.Date) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("date range requires start and end: %w", common.ErrValidation)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s: %w", end, start, common.ErrValidation)
	}
	if days := start.DaysUntil(end) + 1; days > MaxRangeDays {
		return fmt.Errorf("date range covers %d days, the limit is %d: %w", days, MaxRangeDays, common.ErrValidation)
	}
	return nil
}

// Groups partitions [start, end] into contiguous windows of size days; the last may be shorter.
func Groups(start, end model.Date, size int) []model.DateGroup {
	if size < 1 {
		size = 1
	}
	var groups []model.DateGroup
	for cur := start; !cur.After(end); cur = cur.AddDays(size) {
		last := cur.AddDays(size - 1)
		if last.After(end) {
			last = end
		}
		groups = append(groups, model.DateGroup{Start: cur, End: last})
	}
	return groups
}

func ConsistencyPct(daysSubmitted, totalDays int) int {
	if totalDays <= 0 {
		return 0
	}
	pct := int(math.Round(float64(daysSubmitted) / float64(totalDays) * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// BuildBreakdown buckets per-member daily data for [start, end].
func BuildBreakdown(rows []model.Submission, members []model.LeagueMember, start, end model.Date, groupBy string) (*model.Breakdown, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	size, err := GroupSize(groupBy)
	if err != nil {
		return nil, err
	}
	if groupBy == "" {
		groupBy = GroupByDay
	}

	totalDays := start.DaysUntil(end) + 1
	groups := Groups(start, end, size)

	var inRange []model.Submission
	for _, r := range rows {
		if r.ForDate.Before(start) || r.ForDate.After(end) {
			continue
		}
		inRange = append(inRange, r)
	}
	inRange = Dedup(inRange)

	byUser := make(map[string]map[string]model.Submission)
	var order []string
	names := make(map[string]string)
	for _, m := range members {
		if _, ok := byUser[m.UserID]; !ok {
			byUser[m.UserID] = make(map[string]model.Submission)
			order = append(order, m.UserID)
		}
		names[m.UserID] = m.Username
	}
	for _, r := range inRange {
		if _, ok := byUser[r.UserID]; !ok {
			byUser[r.UserID] = make(map[string]model.Submission)
			order = append(order, r.UserID)
		}
		if names[r.UserID] == "" && r.Username != nil {
			names[r.UserID] = *r.Username
		}
		byUser[r.UserID][r.ForDate.String()] = r
	}

	out := &model.Breakdown{
		Start:     start,
		End:       end,
		GroupBy:   groupBy,
		TotalDays: totalDays,
		Groups:    groups,
		Members:   make([]model.MemberBreakdown, 0, len(order)),
	}
	for _, userID := range order {
		days := byUser[userID]
		mb := model.MemberBreakdown{
			UserID:   userID,
			Username: names[userID],
			Days:     make(map[string]*model.DayCell, len(groups)),
		}
		for _, g := range groups {
			mb.Days[g.Start.String()] = groupCell(days, g)
		}
		for _, s := range days {
			mb.TotalSteps += s.Steps
			mb.DaysSubmitted++
		}
		mb.AvgPerDay = AveragePerDay(mb.TotalSteps, mb.DaysSubmitted)
		mb.ConsistencyPct = ConsistencyPct(mb.DaysSubmitted, totalDays)
		out.Members = append(out.Members, mb)
	}
	return out, nil
}

// groupCell is nil when no day in g has data; verified only if every day with data is.
func groupCell(days map[string]model.Submission, g model.DateGroup) *model.DayCell {
	var cell *model.DayCell
	for d := g.Start; !d.After(g.End); d = d.AddDays(1) {
		s, ok := days[d.String()]
		if !ok {
			continue
		}
		if cell == nil {
			cell = &model.DayCell{Verified: true}
		}
		cell.Steps += s.Steps
		if !s.IsVerified() {
			cell.Verified = false
		}
	}
	return cell
}
