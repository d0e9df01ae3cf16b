package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

type VerificationJobRepository interface {
	CreateJob(ctx context.Context, job *model.VerificationJob) error
	GetJobByID(ctx context.Context, id string) (*model.VerificationJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, lastError *string) error
	IncrementJobAttempts(ctx context.Context, jobID string) (int, error)
}

type pgVerificationJobRepository struct {
	db *sql.DB
}

func NewPgVerificationJobRepository(db *sql.DB) VerificationJobRepository {
	return &pgVerificationJobRepository{db: db}
}

func (r *pgVerificationJobRepository) CreateJob(ctx context.Context, job *model.VerificationJob) error {
	query := `INSERT INTO verification_jobs (id, submission_id, status, attempts)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, job.ID, job.SubmissionID, job.Status, job.Attempts).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgVerificationJobRepository.CreateJob: %w", err)
	}
	return nil
}

func (r *pgVerificationJobRepository) GetJobByID(ctx context.Context, id string) (*model.VerificationJob, error) {
	query := `SELECT id, submission_id, status, attempts, last_error, created_at, updated_at
	          FROM verification_jobs WHERE id = $1`
	job := &model.VerificationJob{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.SubmissionID, &job.Status, &job.Attempts, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgVerificationJobRepository.GetJobByID: %w", err)
	}
	return job, nil
}

func (r *pgVerificationJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status string, lastError *string) error {
	query := `UPDATE verification_jobs SET status = $1, last_error = $2, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, lastError, jobID)
	if err != nil {
		return fmt.Errorf("pgVerificationJobRepository.UpdateJobStatus: %w", err)
	}
	return expectOneRow(result)
}

// IncrementJobAttempts returns the attempt count after the increment.
func (r *pgVerificationJobRepository) IncrementJobAttempts(ctx context.Context, jobID string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE verification_jobs SET attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 RETURNING attempts`, jobID,
	).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("pgVerificationJobRepository.IncrementJobAttempts: %w", err)
	}
	return attempts, nil
}
