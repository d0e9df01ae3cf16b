package model

type Badge string

const (
	BadgeLeader       Badge = "leader"
	BadgeMostImproved Badge = "most_improved"
	BadgeStreak30     Badge = "streak_30"
	BadgeStreak7      Badge = "streak_7"
	BadgeStreak3      Badge = "streak_3"
	BadgeMillionClub  Badge = "million_club"
	Badge500kClub     Badge = "500k_club"
	Badge100kClub     Badge = "100k_club"
)

type LeaderboardEntry struct {
	Rank           int      `json:"rank"`
	UserID         string   `json:"user_id"`
	Username       string   `json:"username,omitempty"`
	TotalSteps     int      `json:"total_steps"`
	DaysSubmitted  int      `json:"days_submitted"`
	AveragePerDay  int      `json:"average_per_day"`
	BaselineSteps  *int     `json:"baseline_steps,omitempty"`
	ImprovementPct *float64 `json:"improvement_pct"`
	Badges         []Badge  `json:"badges"`
}

func (e LeaderboardEntry) HasBadge(b Badge) bool {
	for _, have := range e.Badges {
		if have == b {
			return true
		}
	}
	return false
}

// DayCell is one day (or group of days) for one member; nil in a breakdown means no data.
type DayCell struct {
	Steps    int  `json:"steps"`
	Verified bool `json:"verified"`
}

type DateGroup struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

type MemberBreakdown struct {
	UserID         string              `json:"user_id"`
	Username       string              `json:"username,omitempty"`
	Days           map[string]*DayCell `json:"days"` // keyed by group start date
	TotalSteps     int                 `json:"total_steps"`
	DaysSubmitted  int                 `json:"days_submitted"`
	AvgPerDay      int                 `json:"avg_per_day"`
	ConsistencyPct int                 `json:"consistency_pct"`
}

type Breakdown struct {
	Start     Date              `json:"start"`
	End       Date              `json:"end"`
	GroupBy   string            `json:"group_by"`
	TotalDays int               `json:"total_days"`
	Groups    []DateGroup       `json:"groups"`
	Members   []MemberBreakdown `json:"members"`
}
