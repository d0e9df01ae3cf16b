package scoring

import (
	"errors"
	"math"
	"testing"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

func day(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func sub(t *testing.T, user, date string, steps int, verified bool) model.Submission {
	t.Helper()
	v := verified
	return model.Submission{UserID: user, ForDate: day(t, date), Steps: steps, Verified: &v}
}

func TestDedupKeepsHighestSteps(t *testing.T) {
	rows := []model.Submission{
		sub(t, "u1", "2025-01-01", 5000, false),
		sub(t, "u1", "2025-01-01", 7000, false),
		sub(t, "u1", "2025-01-01", 6000, false),
	}

	got := Dedup(rows)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Steps != 7000 {
		t.Fatalf("steps = %d, want 7000", got[0].Steps)
	}

	totals := Aggregate(got)
	if totals[0].TotalSteps != 7000 || totals[0].DaysSubmitted != 1 {
		t.Fatalf("totals = %+v, want 7000 over 1 day", totals[0])
	}
}

func TestDedupLeavesInputUntouched(t *testing.T) {
	rows := []model.Submission{
		sub(t, "u1", "2025-01-01", 5000, false),
		sub(t, "u1", "2025-01-01", 7000, false),
	}
	Dedup(rows)
	if rows[0].Steps != 5000 || rows[1].Steps != 7000 {
		t.Fatalf("input mutated: %+v", rows)
	}
}

func TestAggregateRoundsAverage(t *testing.T) {
	rows := []model.Submission{
		sub(t, "u1", "2025-01-01", 1000, false),
		sub(t, "u1", "2025-01-02", 1001, false),
	}
	got := Aggregate(rows)
	if got[0].AveragePerDay != 1001 {
		t.Fatalf("average = %d, want 1001", got[0].AveragePerDay)
	}
}

func TestScoreRanksByTotalSteps(t *testing.T) {
	rows := []model.Submission{
		sub(t, "u1", "2025-01-01", 5000, false),
		sub(t, "u2", "2025-01-01", 10000, false),
		sub(t, "u3", "2025-01-01", 7500, false),
	}

	got := Score(Input{Current: rows, SortBy: SortByTotalSteps})

	wantOrder := []string{"u2", "u3", "u1"}
	for i, e := range got {
		if e.UserID != wantOrder[i] {
			t.Fatalf("position %d = %s, want %s", i, e.UserID, wantOrder[i])
		}
		if e.Rank != i+1 {
			t.Fatalf("rank of %s = %d, want %d", e.UserID, e.Rank, i+1)
		}
	}
	if !got[0].HasBadge(model.BadgeLeader) {
		t.Fatalf("rank 1 missing leader badge: %v", got[0].Badges)
	}
	if got[1].HasBadge(model.BadgeLeader) {
		t.Fatalf("rank 2 should not lead: %v", got[1].Badges)
	}
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	entries := []model.LeaderboardEntry{
		{UserID: "a", TotalSteps: 100},
		{UserID: "b", TotalSteps: 200},
		{UserID: "c", TotalSteps: 100},
		{UserID: "d", TotalSteps: 100},
	}
	Rank(entries, SortByTotalSteps)

	want := []string{"b", "a", "c", "d"}
	for i, e := range entries {
		if e.UserID != want[i] || e.Rank != i+1 {
			t.Fatalf("entries[%d] = %s rank %d, want %s rank %d", i, e.UserID, e.Rank, want[i], i+1)
		}
	}
}

func TestImprovement(t *testing.T) {
	got := Improvement(10000, 8000)
	if got == nil || math.Abs(*got-25) > 1e-9 {
		t.Fatalf("Improvement(10000, 8000) = %v, want 25", got)
	}
	if got := Improvement(10000, 0); got != nil {
		t.Fatalf("Improvement(10000, 0) = %v, want nil", *got)
	}
	if got := Improvement(4000, 8000); got == nil || *got != -50 {
		t.Fatalf("Improvement(4000, 8000) = %v, want -50", got)
	}
}

func TestRankByImprovementPutsNilLast(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	entries := []model.LeaderboardEntry{
		{UserID: "none"},
		{UserID: "down", ImprovementPct: f(-10)},
		{UserID: "up", ImprovementPct: f(40)},
		{UserID: "flat", ImprovementPct: f(0)},
	}
	Rank(entries, SortByImprovement)

	want := []string{"up", "flat", "down", "none"}
	for i, e := range entries {
		if e.UserID != want[i] {
			t.Fatalf("entries[%d] = %s, want %s", i, e.UserID, want[i])
		}
	}
}

func TestScoreMostImprovedTopThreePositiveOnly(t *testing.T) {
	var current, baseline []model.Submission
	// improvements: a +100%, b +50%, c +20%, d +10%, e -50%, f no baseline
	for _, r := range []struct {
		user      string
		cur, base int
	}{
		{"a", 2000, 1000},
		{"b", 1500, 1000},
		{"c", 1200, 1000},
		{"d", 1100, 1000},
		{"e", 500, 1000},
		{"f", 9000, 0},
	} {
		current = append(current, sub(t, r.user, "2025-02-01", r.cur, false))
		if r.base > 0 {
			baseline = append(baseline, sub(t, r.user, "2025-01-01", r.base, false))
		}
	}

	got := Score(Input{Current: current, Baseline: baseline, Compare: true})

	badged := map[string]bool{}
	for _, e := range got {
		if e.HasBadge(model.BadgeMostImproved) {
			badged[e.UserID] = true
		}
	}
	for _, u := range []string{"a", "b", "c"} {
		if !badged[u] {
			t.Fatalf("%s should be most_improved, badged = %v", u, badged)
		}
	}
	for _, u := range []string{"d", "e", "f"} {
		if badged[u] {
			t.Fatalf("%s should not be most_improved", u)
		}
	}
	for _, e := range got {
		if e.UserID == "f" {
			if e.ImprovementPct != nil {
				t.Fatalf("f improvement = %v, want nil", *e.ImprovementPct)
			}
			if e.BaselineSteps == nil || *e.BaselineSteps != 0 {
				t.Fatalf("f baseline = %v, want 0", e.BaselineSteps)
			}
		}
	}
}

func TestScoreWithoutCompareHasNoImprovement(t *testing.T) {
	got := Score(Input{
		Current: []model.Submission{sub(t, "u1", "2025-01-01", 100, false)},
		SortBy:  SortByImprovement,
	})
	if got[0].ImprovementPct != nil || got[0].BaselineSteps != nil {
		t.Fatalf("entry = %+v, want no baseline fields", got[0])
	}
	if got[0].Rank != 1 {
		t.Fatalf("rank = %d, want 1", got[0].Rank)
	}
}

func TestStreakBadgesAreExclusive(t *testing.T) {
	records := map[string]model.UserRecord{
		"u1": {UserID: "u1", CurrentStreak: 35, LifetimeSteps: 1_200_000},
		"u2": {UserID: "u2", CurrentStreak: 7, LifetimeSteps: 500_000},
		"u3": {UserID: "u3", CurrentStreak: 2, LifetimeSteps: 99_999},
	}
	entries := []model.LeaderboardEntry{
		{UserID: "u1", Rank: 1},
		{UserID: "u2", Rank: 2},
		{UserID: "u3", Rank: 3},
	}
	AssignBadges(entries, records)

	u1 := entries[0]
	if !u1.HasBadge(model.BadgeStreak30) {
		t.Fatalf("u1 badges = %v, want streak_30", u1.Badges)
	}
	if u1.HasBadge(model.BadgeStreak7) || u1.HasBadge(model.BadgeStreak3) {
		t.Fatalf("u1 badges = %v, lower streak badges must not stack", u1.Badges)
	}
	if !u1.HasBadge(model.BadgeMillionClub) || u1.HasBadge(model.Badge500kClub) {
		t.Fatalf("u1 badges = %v, want only million_club tier", u1.Badges)
	}

	u2 := entries[1]
	if !u2.HasBadge(model.BadgeStreak7) || !u2.HasBadge(model.Badge500kClub) {
		t.Fatalf("u2 badges = %v", u2.Badges)
	}
	if len(entries[2].Badges) != 0 {
		t.Fatalf("u3 badges = %v, want none", entries[2].Badges)
	}
}

func TestBadgeOrder(t *testing.T) {
	f := 30.0
	entries := []model.LeaderboardEntry{{UserID: "u1", Rank: 1, ImprovementPct: &f}}
	AssignBadges(entries, map[string]model.UserRecord{
		"u1": {CurrentStreak: 3, LifetimeSteps: 100_000},
	})
	want := []model.Badge{model.BadgeLeader, model.BadgeMostImproved, model.BadgeStreak3, model.Badge100kClub}
	if len(entries[0].Badges) != len(want) {
		t.Fatalf("badges = %v, want %v", entries[0].Badges, want)
	}
	for i := range want {
		if entries[0].Badges[i] != want[i] {
			t.Fatalf("badges = %v, want %v", entries[0].Badges, want)
		}
	}
}

func TestScoreIncludesIdleMembers(t *testing.T) {
	got := Score(Input{
		Current: []model.Submission{sub(t, "u1", "2025-01-01", 100, false)},
		Members: []model.LeagueMember{{UserID: "u1", Username: "ann"}, {UserID: "u2", Username: "bob"}},
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Username != "ann" || got[1].UserID != "u2" || got[1].TotalSteps != 0 {
		t.Fatalf("entries = %+v", got)
	}
	if got[1].Badges == nil {
		t.Fatal("badges should be an empty slice, not nil")
	}
}

func TestCurrentStreak(t *testing.T) {
	today := day(t, "2025-03-10")
	var dates []model.Date
	for i := 0; i < 35; i++ {
		dates = append(dates, today.AddDays(-i))
	}

	if got := CurrentStreak(dates, today); got != 35 {
		t.Fatalf("streak = %d, want 35", got)
	}
	if got := StreakBadge(CurrentStreak(dates, today)); got != model.BadgeStreak30 {
		t.Fatalf("badge = %q, want streak_30", got)
	}
	if got := CurrentStreak(dates[1:], today); got != 34 {
		t.Fatalf("streak ending yesterday = %d, want 34", got)
	}
	if got := CurrentStreak(dates[2:], today); got != 0 {
		t.Fatalf("streak with gap = %d, want 0", got)
	}
}

func TestGroupSize(t *testing.T) {
	cases := map[string]int{"": 1, "day": 1, "3days": 3, "5days": 5, "week": 7, "month": 1}
	for in, want := range cases {
		got, err := GroupSize(in)
		if err != nil || got != want {
			t.Fatalf("GroupSize(%q) = %d, %v, want %d", in, got, err, want)
		}
	}
	if _, err := GroupSize("fortnight"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestBuildBreakdownGroupsAndVerification(t *testing.T) {
	start, end := day(t, "2025-01-01"), day(t, "2025-01-07")
	rows := []model.Submission{
		sub(t, "u1", "2025-01-01", 1000, true),
		sub(t, "u1", "2025-01-02", 2000, true),
		sub(t, "u1", "2025-01-04", 3000, true),
		sub(t, "u1", "2025-01-05", 4000, false),
		sub(t, "u1", "2025-01-05", 3500, true),
		sub(t, "u1", "2024-12-31", 9999, true),
	}

	got, err := BuildBreakdown(rows, nil, start, end, GroupByThreeDay)
	if err != nil {
		t.Fatalf("BuildBreakdown: %v", err)
	}
	if got.TotalDays != 7 {
		t.Fatalf("total days = %d, want 7", got.TotalDays)
	}
	if len(got.Groups) != 3 || !got.Groups[2].Start.Equal(day(t, "2025-01-07")) || !got.Groups[2].End.Equal(end) {
		t.Fatalf("groups = %+v", got.Groups)
	}

	m := got.Members[0]
	first := m.Days["2025-01-01"]
	if first == nil || first.Steps != 3000 || !first.Verified {
		t.Fatalf("first group = %+v, want 3000 verified", first)
	}
	second := m.Days["2025-01-04"]
	if second == nil || second.Steps != 7000 || second.Verified {
		t.Fatalf("second group = %+v, want 7000 unverified", second)
	}
	if cell, ok := m.Days["2025-01-07"]; !ok || cell != nil {
		t.Fatalf("empty group = %+v (present %v), want explicit nil", cell, ok)
	}
	if m.TotalSteps != 10000 || m.DaysSubmitted != 4 {
		t.Fatalf("member totals = %d over %d days", m.TotalSteps, m.DaysSubmitted)
	}
	if m.ConsistencyPct != 57 {
		t.Fatalf("consistency = %d, want 57", m.ConsistencyPct)
	}
	if m.AvgPerDay != 2500 {
		t.Fatalf("avg = %d, want 2500", m.AvgPerDay)
	}
}

func TestBuildBreakdownRejectsInvertedRange(t *testing.T) {
	_, err := BuildBreakdown(nil, nil, day(t, "2025-01-07"), day(t, "2025-01-01"), GroupByDay)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestBuildBreakdownRejectsHugeRange(t *testing.T) {
	members := []model.LeagueMember{{UserID: "u1"}, {UserID: "u2"}}
	_, err := BuildBreakdown(nil, members, day(t, "1000-01-01"), day(t, "9999-12-31"), GroupByDay)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	start := day(t, "2025-01-01")
	got, err := BuildBreakdown(nil, members, start, start.AddDays(MaxRangeDays-1), GroupByWeek)
	if err != nil {
		t.Fatalf("BuildBreakdown at the limit: %v", err)
	}
	if got.TotalDays != MaxRangeDays {
		t.Fatalf("total days = %d, want %d", got.TotalDays, MaxRangeDays)
	}
}

func TestBuildBreakdownMonthIsDaily(t *testing.T) {
	got, err := BuildBreakdown(nil, []model.LeagueMember{{UserID: "u1", Username: "ann"}},
		day(t, "2025-01-01"), day(t, "2025-01-03"), GroupByMonth)
	if err != nil {
		t.Fatalf("BuildBreakdown: %v", err)
	}
	if len(got.Groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(got.Groups))
	}
	if got.Members[0].ConsistencyPct != 0 || len(got.Members[0].Days) != 3 {
		t.Fatalf("member = %+v", got.Members[0])
	}
}
