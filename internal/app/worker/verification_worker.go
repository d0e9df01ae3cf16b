package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository"
	"stepleague/internal/platform/logger"
	"stepleague/internal/platform/verifier"
)

const (
	popTimeout     = time.Second
	lockBusyDelay  = 2 * time.Second
	retryBaseDelay = 5 * time.Second
	retryMaxDelay  = 120 * time.Second
)

// JobQueue is the Redis-backed queue the worker consumes.
type JobQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Requeue(ctx context.Context, jobID string) error
	Schedule(ctx context.Context, jobID string, delay time.Duration) error
	PromoteDue(ctx context.Context) (int, error)
	AcquireLock(ctx context.Context, submissionID string) (string, bool, error)
	ReleaseLock(ctx context.Context, submissionID, token string) (bool, error)
}

// Runner performs one verification call and persists a completed result.
type Runner interface {
	Run(ctx context.Context, sub *model.Submission) verifier.Outcome
}

type VerificationWorker struct {
	queue          JobQueue
	jobRepo        repository.VerificationJobRepository
	submissionRepo repository.SubmissionRepository
	runner         Runner
	maxAttempts    int
}

func NewVerificationWorker(queue JobQueue, jobRepo repository.VerificationJobRepository, subRepo repository.SubmissionRepository, runner Runner, maxAttempts int) *VerificationWorker {
	return &VerificationWorker{
		queue:          queue,
		jobRepo:        jobRepo,
		submissionRepo: subRepo,
		runner:         runner,
		maxAttempts:    maxAttempts,
	}
}

func (w *VerificationWorker) Start(ctx context.Context) {
	logger.Info("verification worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("verification worker stopping...")
			return
		default:
		}

		if n, err := w.queue.PromoteDue(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Error("failed to promote delayed verification jobs: %v", err)
			}
		} else if n > 0 {
			logger.Debug("promoted %d delayed verification jobs", n)
		}

		jobID, err := w.queue.Pop(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to pop verification job: %v", err)
			sleep(ctx, 5*time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		logger.Debug("worker picked up job %s", jobID)
		w.ProcessJob(ctx, jobID)
	}
}

// ProcessJob runs one job under its submission's lock.
func (w *VerificationWorker) ProcessJob(ctx context.Context, jobID string) {
	job, err := w.jobRepo.GetJobByID(ctx, jobID)
	if err != nil {
		logger.Error("failed to fetch job %s: %v", jobID, err)
		return
	}
	switch job.Status {
	case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusRateLimited:
		logger.Warn("job %s already finished with status %s, skipping", job.ID, job.Status)
		return
	}

	token, ok, err := w.queue.AcquireLock(ctx, job.SubmissionID)
	if err != nil {
		logger.Error("failed to attempt lock for submission %s (job %s): %v", job.SubmissionID, job.ID, err)
		w.requeue(ctx, job.ID)
		return
	}
	if !ok {
		logger.Info("submission %s is being verified elsewhere, delaying job %s", job.SubmissionID, job.ID)
		if err := w.queue.Schedule(ctx, job.ID, lockBusyDelay); err != nil {
			logger.Error("failed to delay job %s: %v", job.ID, err)
		}
		return
	}
	defer func() {
		released, err := w.queue.ReleaseLock(context.WithoutCancel(ctx), job.SubmissionID, token)
		if err != nil {
			logger.Error("failed to release lock for submission %s: %v", job.SubmissionID, err)
		} else if !released {
			logger.Warn("lock for submission %s expired before release", job.SubmissionID)
		}
	}()

	w.handleJob(ctx, job)
}

func (w *VerificationWorker) handleJob(ctx context.Context, job *model.VerificationJob) {
	if err := w.jobRepo.UpdateJobStatus(ctx, job.ID, model.JobStatusProcessing, nil); err != nil {
		logger.Error("failed to mark job %s processing: %v", job.ID, err)
	}
	attempts, err := w.jobRepo.IncrementJobAttempts(ctx, job.ID)
	if err != nil {
		w.fail(ctx, job.ID, fmt.Sprintf("failed to count attempt: %v", err))
		return
	}

	sub, err := w.submissionRepo.GetByID(ctx, job.SubmissionID)
	if err != nil {
		w.fail(ctx, job.ID, fmt.Sprintf("failed to fetch submission %s: %v", job.SubmissionID, err))
		return
	}

	switch out := w.runner.Run(ctx, sub).(type) {
	case verifier.Verified:
		w.setStatus(ctx, job.ID, model.JobStatusCompleted, nil)
		logger.Info("job %s completed: submission %s verified=%t", job.ID, sub.ID, out.Result.Verified)

	case verifier.RateLimited:
		// attempts counts calls made; the first call is not a retry
		if attempts > w.maxAttempts {
			msg := fmt.Sprintf("verifier still rate limited after %d attempts", attempts)
			w.setStatus(ctx, job.ID, model.JobStatusRateLimited, &msg)
			logger.Warn("job %s: %s", job.ID, msg)
			return
		}
		delay := RetryDelay(attempts, out.RetryAfter)
		msg := fmt.Sprintf("rate limited, retrying in %s", delay)
		w.setStatus(ctx, job.ID, model.JobStatusQueued, &msg)
		if err := w.queue.Schedule(ctx, job.ID, delay); err != nil {
			w.fail(ctx, job.ID, fmt.Sprintf("failed to schedule retry: %v", err))
			return
		}
		logger.Info("job %s rate limited (attempt %d), retry in %s", job.ID, attempts, delay)

	case verifier.Failed:
		w.fail(ctx, job.ID, out.Message)

	default:
		w.fail(ctx, job.ID, fmt.Sprintf("unexpected verification outcome %T", out))
	}
}

// RetryDelay is the exponential backoff for the given attempt, stretched to what
// the verifier asked for and capped at retryMaxDelay.
func RetryDelay(attempts int, retryAfter time.Duration) time.Duration {
	d := common.Backoff(attempts-1, retryBaseDelay, retryMaxDelay)
	if retryAfter > d {
		d = retryAfter
	}
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}

func (w *VerificationWorker) fail(ctx context.Context, jobID, msg string) {
	logger.Error("job %s failed: %s", jobID, msg)
	w.setStatus(ctx, jobID, model.JobStatusFailed, &msg)
}

func (w *VerificationWorker) setStatus(ctx context.Context, jobID, status string, lastError *string) {
	if err := w.jobRepo.UpdateJobStatus(ctx, jobID, status, lastError); err != nil {
		logger.Error("failed to update job %s status to %s: %v", jobID, status, err)
	}
}

func (w *VerificationWorker) requeue(ctx context.Context, jobID string) {
	if err := w.queue.Requeue(ctx, jobID); err != nil {
		logger.Error("failed to re-queue job %s: %v", jobID, err)
	} else {
		logger.Info("job %s re-queued", jobID)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
