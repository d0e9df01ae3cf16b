package scoring

import (
	"math"
	"sort"

	"stepleague/internal/domain/model"
)

type SortKey string

const (
	SortByTotalSteps  SortKey = "total_steps"
	SortByImprovement SortKey = "improvement"
)

const mostImprovedSlots = 3

// Dedup keeps, for each (user_id, for_date), the row with the highest steps.
// Output order follows the first appearance of each key.
func Dedup(rows []model.Submission) []model.Submission {
	index := make(map[string]int, len(rows))
	out := make([]model.Submission, 0, len(rows))
	for _, row := range rows {
		key := row.UserID + "|" + row.ForDate.String()
		if i, ok := index[key]; ok {
			if row.Steps > out[i].Steps {
				out[i] = row
			}
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}

type MemberTotals struct {
	UserID        string
	Username      string
	TotalSteps    int
	DaysSubmitted int
	AveragePerDay int
}

// Aggregate sums already-deduplicated rows per user, in order of first appearance.
func Aggregate(rows []model.Submission) []MemberTotals {
	index := make(map[string]int)
	var out []MemberTotals
	for _, row := range rows {
		i, ok := index[row.UserID]
		if !ok {
			i = len(out)
			index[row.UserID] = i
			t := MemberTotals{UserID: row.UserID}
			if row.Username != nil {
				t.Username = *row.Username
			}
			out = append(out, t)
		}
		out[i].TotalSteps += row.Steps
		out[i].DaysSubmitted++
	}
	for i := range out {
		out[i].AveragePerDay = AveragePerDay(out[i].TotalSteps, out[i].DaysSubmitted)
	}
	return out
}

func AveragePerDay(total, days int) int {
	if days <= 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(days)))
}

// Improvement is nil when there is no positive baseline to compare against.
func Improvement(current, baseline int) *float64 {
	if baseline <= 0 {
		return nil
	}
	pct := (float64(current) - float64(baseline)) / float64(baseline) * 100
	return &pct
}

// Rank sorts entries in place, descending by key, and assigns ranks 1..N.
// Ties keep their input order; a nil improvement sorts below every non-nil value.
func Rank(entries []model.LeaderboardEntry, key SortKey) {
	switch key {
	case SortByImprovement:
		sort.SliceStable(entries, func(i, j int) bool {
			return improvementGreater(entries[i].ImprovementPct, entries[j].ImprovementPct)
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].TotalSteps > entries[j].TotalSteps
		})
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

func improvementGreater(a, b *float64) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}

// AssignBadges annotates ranked entries. Rules only ever add badges.
func AssignBadges(entries []model.LeaderboardEntry, records map[string]model.UserRecord) {
	for i := range entries {
		if entries[i].Rank == 1 {
			addBadge(&entries[i], model.BadgeLeader)
		}
	}

	var improved []int
	for i, e := range entries {
		if e.ImprovementPct != nil && *e.ImprovementPct > 0 {
			improved = append(improved, i)
		}
	}
	sort.SliceStable(improved, func(a, b int) bool {
		return *entries[improved[a]].ImprovementPct > *entries[improved[b]].ImprovementPct
	})
	if len(improved) > mostImprovedSlots {
		improved = improved[:mostImprovedSlots]
	}
	for _, i := range improved {
		addBadge(&entries[i], model.BadgeMostImproved)
	}

	for i := range entries {
		rec, ok := records[entries[i].UserID]
		if !ok {
			continue
		}
		if b := StreakBadge(rec.CurrentStreak); b != "" {
			addBadge(&entries[i], b)
		}
		if b := LifetimeBadge(rec.LifetimeSteps); b != "" {
			addBadge(&entries[i], b)
		}
	}
}

func StreakBadge(streak int) model.Badge {
	switch {
	case streak >= 30:
		return model.BadgeStreak30
	case streak >= 7:
		return model.BadgeStreak7
	case streak >= 3:
		return model.BadgeStreak3
	}
	return ""
}

func LifetimeBadge(steps int64) model.Badge {
	switch {
	case steps >= 1_000_000:
		return model.BadgeMillionClub
	case steps >= 500_000:
		return model.Badge500kClub
	case steps >= 100_000:
		return model.Badge100kClub
	}
	return ""
}

func addBadge(e *model.LeaderboardEntry, b model.Badge) {
	if e.HasBadge(b) {
		return
	}
	e.Badges = append(e.Badges, b)
}

// Input is everything one leaderboard computation needs. It is never mutated.
type Input struct {
	Current  []model.Submission
	Baseline []model.Submission // only read when Compare is set
	Compare  bool
	Members  []model.LeagueMember // members without submissions still get a row
	Records  map[string]model.UserRecord
	SortBy   SortKey
}

// Score produces a ranked, badge-annotated leaderboard.
func Score(in Input) []model.LeaderboardEntry {
	totals := Aggregate(Dedup(in.Current))

	var baseline map[string]int
	if in.Compare {
		baseline = make(map[string]int)
		for _, t := range Aggregate(Dedup(in.Baseline)) {
			baseline[t.UserID] = t.TotalSteps
		}
	}

	names := make(map[string]string, len(in.Members))
	for _, m := range in.Members {
		names[m.UserID] = m.Username
	}

	seen := make(map[string]bool, len(totals))
	entries := make([]model.LeaderboardEntry, 0, len(totals)+len(in.Members))
	for _, t := range totals {
		seen[t.UserID] = true
		entries = append(entries, model.LeaderboardEntry{
			UserID:        t.UserID,
			Username:      firstNonEmpty(names[t.UserID], t.Username),
			TotalSteps:    t.TotalSteps,
			DaysSubmitted: t.DaysSubmitted,
			AveragePerDay: t.AveragePerDay,
		})
	}
	for _, m := range in.Members {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		entries = append(entries, model.LeaderboardEntry{UserID: m.UserID, Username: m.Username})
	}

	if in.Compare {
		for i := range entries {
			base := baseline[entries[i].UserID]
			entries[i].BaselineSteps = &base
			entries[i].ImprovementPct = Improvement(entries[i].TotalSteps, base)
		}
	}

	sortBy := in.SortBy
	if sortBy == "" || (sortBy == SortByImprovement && !in.Compare) {
		sortBy = SortByTotalSteps
	}
	Rank(entries, sortBy)
	AssignBadges(entries, in.Records)

	for i := range entries {
		if entries[i].Badges == nil {
			entries[i].Badges = []model.Badge{}
		}
	}
	return entries
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
