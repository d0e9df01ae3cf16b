package model

import "time"

type League struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	StartDate    Date      `json:"start_date"`
	EndDate      Date      `json:"end_date"`
	RequireProof bool      `json:"require_proof"`
	CreatedByID  *string   `json:"created_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type LeagueMember struct {
	LeagueID string    `json:"league_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// UserRecord is the read-only streak/lifetime input to badge assignment.
type UserRecord struct {
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	LifetimeSteps int64  `json:"lifetime_steps"`
}
