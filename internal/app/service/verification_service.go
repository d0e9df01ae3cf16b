package service

import (
	"context"
	"fmt"
	"time"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository"
	"stepleague/internal/platform/logger"
	"stepleague/internal/platform/ratelimit"
	"stepleague/internal/platform/storage"
	"stepleague/internal/platform/verifier"
)

// VerificationFailedError carries the verifier's message unchanged to the client.
type VerificationFailedError struct {
	Message string
}

func (e *VerificationFailedError) Error() string { return e.Message }

func (e *VerificationFailedError) Unwrap() error { return common.ErrServiceUnavailable }

// SubmissionLocker is the per-submission lock the re-verification worker also holds.
type SubmissionLocker interface {
	AcquireLock(ctx context.Context, submissionID string) (string, bool, error)
	ReleaseLock(ctx context.Context, submissionID, token string) (bool, error)
}

// lockBusyRetry is the Retry-After sent while another verification holds the lock.
const lockBusyRetry = 2 * time.Second

type VerificationService struct {
	submissionRepo repository.SubmissionRepository
	store          storage.ProofStore
	verifier       verifier.Verifier
	limiter        ratelimit.Limiter
	locker         SubmissionLocker
	tolerance      int
}

func NewVerificationService(
	subRepo repository.SubmissionRepository,
	store storage.ProofStore,
	v verifier.Verifier,
	limiter ratelimit.Limiter,
	tolerance int,
) *VerificationService {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &VerificationService{
		submissionRepo: subRepo,
		store:          store,
		verifier:       v,
		limiter:        limiter,
		tolerance:      tolerance,
	}
}

// WithLocker serialises synchronous verification with queued re-verification jobs.
func (s *VerificationService) WithLocker(l SubmissionLocker) *VerificationService {
	s.locker = l
	return s
}

// VerifySubmission runs the AI check for the owner's submission right away.
// Rate limiting, from our own limiter or the verifier, surfaces as *common.RateLimitError.
func (s *VerificationService) VerifySubmission(ctx context.Context, userID, submissionID string) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, fmt.Errorf("only the owner can verify a submission: %w", common.ErrForbidden)
	}
	if sub.ProofPath == nil {
		return nil, fmt.Errorf("submission has no proof image: %w", common.ErrValidation)
	}
	if err := s.limiter.Allow(ctx, userID); err != nil {
		logger.Warn("verify rate limit hit for user %s: %v", userID, err)
		return nil, err
	}

	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, sub.ID)
		if err != nil {
			return nil, common.Errorf("failed to lock submission %s: %w", sub.ID, err)
		}
		if !ok {
			logger.Info("submission %s is already being verified", sub.ID)
			return nil, &common.RateLimitError{RetryAfter: lockBusyRetry}
		}
		defer func() {
			if _, err := s.locker.ReleaseLock(context.WithoutCancel(ctx), sub.ID, token); err != nil {
				logger.Error("failed to release lock for submission %s: %v", sub.ID, err)
			}
		}()
	}

	switch out := s.Run(ctx, sub).(type) {
	case verifier.Verified:
		return sub, nil
	case verifier.RateLimited:
		retry := out.RetryAfter
		if retry <= 0 {
			retry = time.Second
		}
		return nil, &common.RateLimitError{RetryAfter: retry}
	case verifier.Failed:
		return nil, &VerificationFailedError{Message: out.Message}
	default:
		return nil, fmt.Errorf("unexpected verification outcome %T", out)
	}
}

// Run calls the verifier for sub and persists a completed result onto it.
func (s *VerificationService) Run(ctx context.Context, sub *model.Submission) verifier.Outcome {
	if sub.ProofPath == nil {
		return verifier.Failed{Message: "submission has no proof image"}
	}
	out := s.verifier.Verify(ctx, verifier.Request{
		SubmissionID: sub.ID,
		ImageURL:     s.store.URL(*sub.ProofPath),
		ClaimedSteps: sub.Steps,
		ForDate:      sub.ForDate.String(),
		Tolerance:    s.tolerance,
	})

	v, ok := out.(verifier.Verified)
	if !ok {
		return out
	}
	if err := s.submissionRepo.UpdateVerification(ctx, sub.ID, v.Result); err != nil {
		logger.Error("failed to persist verification for submission %s: %v", sub.ID, err)
		return verifier.Failed{Message: fmt.Sprintf("failed to save verification result: %v", err)}
	}
	verified := v.Result.Verified
	sub.Verified = &verified
	sub.ExtractedSteps = v.Result.ExtractedSteps
	sub.VerificationNotes = v.Result.Notes
	logger.Info("submission %s verified=%t", sub.ID, verified)
	return out
}
