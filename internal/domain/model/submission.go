package model

import "time"

type Submission struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	LeagueID          string    `json:"league_id"`
	ForDate           Date      `json:"for_date"`
	Steps             int       `json:"steps"`
	Verified          *bool     `json:"verified"` // nil until a verification has run
	ProofPath         *string   `json:"proof_path,omitempty"`
	Flagged           bool      `json:"flagged"`
	FlagReason        *string   `json:"flag_reason,omitempty"`
	ExtractedSteps    *int      `json:"extracted_steps,omitempty"`
	VerificationNotes *string   `json:"verification_notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Username          *string   `json:"username,omitempty"` // For display
}

// IsVerified reports a positive verification; nil and false are both unverified.
func (s Submission) IsVerified() bool {
	return s.Verified != nil && *s.Verified
}

// VerificationResult is the persisted outcome of one AI verification call.
type VerificationResult struct {
	Verified       bool    `json:"verified"`
	ExtractedSteps *int    `json:"extracted_steps,omitempty"`
	ExtractedDate  *string `json:"extracted_date,omitempty"`
	Difference     *int    `json:"difference,omitempty"`
	ToleranceUsed  *int    `json:"tolerance_used,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}
