package repository

import (
	"context"
	"database/sql"
	"fmt"

	"stepleague/internal/domain/model"
)

// UserRecordRepository reads the cross-league history that badges are computed from.
type UserRecordRepository interface {
	// LifetimeSteps sums each user's best row per calendar day across all leagues.
	LifetimeSteps(ctx context.Context, userIDs []string) (map[string]int64, error)
	// SubmissionDates returns the distinct days each user submitted on, up to and including upTo.
	SubmissionDates(ctx context.Context, userIDs []string, upTo model.Date) (map[string][]model.Date, error)
}

type pgUserRecordRepository struct {
	db *sql.DB
}

func NewPgUserRecordRepository(db *sql.DB) UserRecordRepository {
	return &pgUserRecordRepository{db: db}
}

func (r *pgUserRecordRepository) LifetimeSteps(ctx context.Context, userIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	query := `SELECT user_id, COALESCE(SUM(best), 0)
	          FROM (SELECT user_id, for_date, MAX(steps) AS best
	                FROM submissions WHERE user_id = ANY($1)
	                GROUP BY user_id, for_date) daily
	          GROUP BY user_id`
	rows, err := r.db.QueryContext(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("pgUserRecordRepository.LifetimeSteps query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var total int64
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("pgUserRecordRepository.LifetimeSteps scan: %w", err)
		}
		out[userID] = total
	}
	return out, rows.Err()
}

func (r *pgUserRecordRepository) SubmissionDates(ctx context.Context, userIDs []string, upTo model.Date) (map[string][]model.Date, error) {
	out := make(map[string][]model.Date, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	query := `SELECT DISTINCT user_id, for_date FROM submissions
	          WHERE user_id = ANY($1) AND for_date <= $2
	          ORDER BY user_id, for_date DESC`
	rows, err := r.db.QueryContext(ctx, query, userIDs, upTo)
	if err != nil {
		return nil, fmt.Errorf("pgUserRecordRepository.SubmissionDates query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var d model.Date
		if err := rows.Scan(&userID, &d); err != nil {
			return nil, fmt.Errorf("pgUserRecordRepository.SubmissionDates scan: %w", err)
		}
		out[userID] = append(out[userID], d)
	}
	return out, rows.Err()
}
