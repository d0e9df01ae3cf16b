package service

import (
	"context"

	"github.com/google/uuid"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository"
	"stepleague/internal/platform/logger"
)

// JobQueue is the push side of the verification queue.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type VerificationJobService struct {
	jobRepo        repository.VerificationJobRepository
	submissionRepo repository.SubmissionRepository
	queue          JobQueue
}

func NewVerificationJobService(jobRepo repository.VerificationJobRepository, subRepo repository.SubmissionRepository, queue JobQueue) *VerificationJobService {
	return &VerificationJobService{jobRepo: jobRepo, submissionRepo: subRepo, queue: queue}
}

// EnqueueReverification creates a job record and pushes its ID to Redis.
func (s *VerificationJobService) EnqueueReverification(ctx context.Context, submissionID string) (*model.VerificationJob, error) {
	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.ProofPath == nil {
		return nil, common.Errorf("submission %s has no proof image: %w", sub.ID, common.ErrValidation)
	}

	job := &model.VerificationJob{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		Status:       model.JobStatusQueued,
	}
	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		return nil, common.Errorf("failed to create verification job in DB: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		// The row stays Queued; mark it failed so it is not mistaken for pending work.
		msg := "failed to push job to queue: " + err.Error()
		if uerr := s.jobRepo.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed, &msg); uerr != nil {
			logger.Error("failed to mark job %s failed: %v", job.ID, uerr)
		}
		return nil, common.Errorf("failed to push job ID to Redis queue: %w", err)
	}

	logger.Info("verification job %s for submission %s enqueued", job.ID, sub.ID)
	return job, nil
}
