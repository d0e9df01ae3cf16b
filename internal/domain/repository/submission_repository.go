package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.Submission) error
	// Overwrite replaces the row for (user, league, date), resetting verification state.
	Overwrite(ctx context.Context, sub *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)

	// ListByLeagueRange returns rows ordered by (for_date, user_id), usernames filled in.
	ListByLeagueRange(ctx context.Context, leagueID string, from, to model.Date) ([]model.Submission, error)
	ListByUser(ctx context.Context, userID, leagueID string, from, to model.Date) ([]model.Submission, error)

	UpdateVerification(ctx context.Context, submissionID string, result model.VerificationResult) error
	Flag(ctx context.Context, submissionID, reason string) error
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

const submissionSelect = `
        SELECT s.id, s.user_id, s.league_id, s.for_date, s.steps, s.verified, s.proof_path,
               s.flagged, s.flag_reason, s.extracted_steps, s.verification_notes,
               s.created_at, s.updated_at, u.username
        FROM submissions s
        JOIN users u ON u.id = s.user_id`

func (r *pgSubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	query := `INSERT INTO submissions (id, user_id, league_id, for_date, steps, proof_path)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.UserID, s.LeagueID, s.ForDate, s.Steps, s.ProofPath).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("a submission for %s already exists: %w", s.ForDate, common.ErrConflict)
		}
		return fmt.Errorf("pgSubmissionRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) Overwrite(ctx context.Context, s *model.Submission) error {
	query := `INSERT INTO submissions (id, user_id, league_id, for_date, steps, proof_path)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (user_id, league_id, for_date) DO UPDATE SET
	              steps = EXCLUDED.steps,
	              proof_path = EXCLUDED.proof_path,
	              verified = NULL,
	              extracted_steps = NULL,
	              verification_notes = NULL,
	              updated_at = CURRENT_TIMESTAMP
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.UserID, s.LeagueID, s.ForDate, s.Steps, s.ProofPath).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.Overwrite: %w", err)
	}
	s.Verified = nil
	s.ExtractedSteps = nil
	s.VerificationNotes = nil
	return nil
}

func (r *pgSubmissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	row := r.db.QueryRowContext(ctx, submissionSelect+` WHERE s.id = $1`, id)
	s, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetByID: %w", err)
	}
	return s, nil
}

func (r *pgSubmissionRepository) ListByLeagueRange(ctx context.Context, leagueID string, from, to model.Date) ([]model.Submission, error) {
	query := submissionSelect + `
        WHERE s.league_id = $1 AND s.for_date BETWEEN $2 AND $3
        ORDER BY s.for_date, s.user_id`
	return r.list(ctx, "ListByLeagueRange", query, leagueID, from, to)
}

func (r *pgSubmissionRepository) ListByUser(ctx context.Context, userID, leagueID string, from, to model.Date) ([]model.Submission, error) {
	query := submissionSelect + `
        WHERE s.user_id = $1 AND s.league_id = $2 AND s.for_date BETWEEN $3 AND $4
        ORDER BY s.for_date DESC`
	return r.list(ctx, "ListByUser", query, userID, leagueID, from, to)
}

func (r *pgSubmissionRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]model.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.%s query: %w", op, err)
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.%s scan: %w", op, err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.%s rows: %w", op, err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) UpdateVerification(ctx context.Context, submissionID string, res model.VerificationResult) error {
	query := `UPDATE submissions SET verified = $1, extracted_steps = $2, verification_notes = $3,
	                 updated_at = CURRENT_TIMESTAMP
	          WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, res.Verified, res.ExtractedSteps, res.Notes, submissionID)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.UpdateVerification: %w", err)
	}
	return expectOneRow(result)
}

func (r *pgSubmissionRepository) Flag(ctx context.Context, submissionID, reason string) error {
	query := `UPDATE submissions SET flagged = TRUE, flag_reason = $1, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, reason, submissionID)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.Flag: %w", err)
	}
	return expectOneRow(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.LeagueID, &s.ForDate, &s.Steps, &s.Verified, &s.ProofPath,
		&s.Flagged, &s.FlagReason, &s.ExtractedSteps, &s.VerificationNotes,
		&s.CreatedAt, &s.UpdatedAt, &s.Username,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
