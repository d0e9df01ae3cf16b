package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository"
	"stepleague/internal/platform/logger"
	"stepleague/internal/platform/storage"
)

// maxDailySteps rejects obviously mistyped counts.
const maxDailySteps = 200_000

type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	leagueRepo     repository.LeagueRepository
	clock          func() time.Time
}

func NewSubmissionService(subRepo repository.SubmissionRepository, leagueRepo repository.LeagueRepository) *SubmissionService {
	return &SubmissionService{
		submissionRepo: subRepo,
		leagueRepo:     leagueRepo,
		clock:          time.Now,
	}
}

type CreateSubmissionRequest struct {
	LeagueID  string     `json:"league_id"`
	ForDate   model.Date `json:"for_date"`
	Steps     int        `json:"steps"`
	ProofPath *string    `json:"proof_path,omitempty"`
	Overwrite bool       `json:"overwrite"`
}

type FlagSubmissionRequest struct {
	Reason string `json:"reason"`
}

// CreateSubmission saves one day's count. Without Overwrite an existing row for the
// same (user, league, date) yields ErrConflict.
func (s *SubmissionService) CreateSubmission(ctx context.Context, userID string, req CreateSubmissionRequest) (*model.Submission, error) {
	if req.ForDate.IsZero() {
		return nil, fmt.Errorf("for_date is required: %w", common.ErrBadRequest)
	}
	if req.Steps < 0 || req.Steps > maxDailySteps {
		return nil, fmt.Errorf("steps must be between 0 and %d: %w", maxDailySteps, common.ErrValidation)
	}
	// one day of slack for members ahead of the server's timezone
	latest := model.DateOf(s.clock()).AddDays(1)
	if req.ForDate.After(latest) {
		return nil, fmt.Errorf("cannot submit for a future date: %w", common.ErrValidation)
	}

	league, err := requireMember(ctx, s.leagueRepo, req.LeagueID, userID)
	if err != nil {
		return nil, err
	}
	if req.ForDate.Before(league.StartDate) || req.ForDate.After(league.EndDate) {
		return nil, fmt.Errorf("%s is outside the league window %s..%s: %w",
			req.ForDate, league.StartDate, league.EndDate, common.ErrValidation)
	}

	if req.ProofPath != nil {
		p, err := storage.CleanPath(*req.ProofPath)
		if err != nil {
			return nil, fmt.Errorf("invalid proof_path: %w", common.ErrValidation)
		}
		if !strings.HasPrefix(p, storage.UserPrefix(userID)) {
			return nil, fmt.Errorf("proof does not belong to you: %w", common.ErrForbidden)
		}
		req.ProofPath = &p
	}
	if league.RequireProof && req.ProofPath == nil {
		return nil, fmt.Errorf("this league requires a proof image: %w", common.ErrValidation)
	}

	sub := &model.Submission{
		ID:        uuid.NewString(),
		UserID:    userID,
		LeagueID:  league.ID,
		ForDate:   req.ForDate,
		Steps:     req.Steps,
		ProofPath: req.ProofPath,
	}

	if req.Overwrite {
		err = s.submissionRepo.Overwrite(ctx, sub)
	} else {
		err = s.submissionRepo.Create(ctx, sub)
	}
	if err != nil {
		return nil, common.Errorf("failed to save submission: %w", err)
	}

	logger.Info("submission %s saved for user %s on %s (%d steps, overwrite=%t)",
		sub.ID, userID, sub.ForDate, sub.Steps, req.Overwrite)
	return sub, nil
}

func (s *SubmissionService) GetSubmission(ctx context.Context, userID, submissionID string) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		if _, err := requireMember(ctx, s.leagueRepo, sub.LeagueID, userID); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// ListOwn returns the caller's rows in [from, to], defaulting to the league window.
func (s *SubmissionService) ListOwn(ctx context.Context, userID, leagueID string, from, to model.Date) ([]model.Submission, error) {
	league, err := requireMember(ctx, s.leagueRepo, leagueID, userID)
	if err != nil {
		return nil, err
	}
	if from.IsZero() {
		from = league.StartDate
	}
	if to.IsZero() {
		to = league.EndDate
	}
	if to.Before(from) {
		return nil, fmt.Errorf("to is before from: %w", common.ErrValidation)
	}
	return s.submissionRepo.ListByUser(ctx, userID, league.ID, from, to)
}

// Flag marks a league-mate's submission as suspicious.
func (s *SubmissionService) Flag(ctx context.Context, userID, submissionID string, req FlagSubmissionRequest) (*model.Submission, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("a reason is required to flag a submission: %w", common.ErrValidation)
	}
	sub, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.leagueRepo, sub.LeagueID, userID); err != nil {
		return nil, err
	}
	if err := s.submissionRepo.Flag(ctx, sub.ID, reason); err != nil {
		return nil, common.Errorf("failed to flag submission: %w", err)
	}
	sub.Flagged = true
	sub.FlagReason = &reason
	logger.Warn("submission %s flagged by %s: %s", sub.ID, userID, reason)
	return sub, nil
}
