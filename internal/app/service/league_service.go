package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository"
	"stepleague/internal/platform/logger"
)

type LeagueService struct {
	leagueRepo repository.LeagueRepository
	db         *sql.DB // nil disables transactions (tests)
}

func NewLeagueService(leagueRepo repository.LeagueRepository, db *sql.DB) *LeagueService {
	return &LeagueService{leagueRepo: leagueRepo, db: db}
}

type CreateLeagueRequest struct {
	Name         string     `json:"name"`
	StartDate    model.Date `json:"start_date"`
	EndDate      model.Date `json:"end_date"`
	RequireProof bool       `json:"require_proof"`
}

// CreateLeague stores the league and enrolls its creator in one transaction.
func (s *LeagueService) CreateLeague(ctx context.Context, userID string, req CreateLeagueRequest) (*model.League, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, fmt.Errorf("name, start_date and end_date are required: %w", common.ErrBadRequest)
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, fmt.Errorf("end_date is before start_date: %w", common.ErrValidation)
	}

	league := &model.League{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Slug:         slug.Make(req.Name),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		RequireProof: req.RequireProof,
		CreatedByID:  &userID,
	}
	if league.Slug == "" {
		league.Slug = league.ID[:8]
	}

	err := s.createWithCreator(ctx, league, userID)
	if errors.Is(err, common.ErrConflict) {
		// Same name as an existing league: disambiguate once.
		league.Slug = slug.Make(req.Name + " " + league.ID[:8])
		err = s.createWithCreator(ctx, league, userID)
	}
	if err != nil {
		return nil, common.Errorf("failed to create league: %w", err)
	}

	logger.Info("league %s (%s) created by %s", league.ID, league.Slug, userID)
	return league, nil
}

func (s *LeagueService) createWithCreator(ctx context.Context, league *model.League, userID string) error {
	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	if tx != nil {
		defer tx.Rollback()
	}

	if err := s.leagueRepo.Create(ctx, tx, league); err != nil {
		return err
	}
	if err := s.leagueRepo.AddMember(ctx, tx, league.ID, userID); err != nil {
		return err
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			return common.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

func (s *LeagueService) GetLeagueBySlug(ctx context.Context, leagueSlug string) (*model.League, error) {
	return s.leagueRepo.FindBySlug(ctx, leagueSlug)
}

func (s *LeagueService) GetLeague(ctx context.Context, leagueID string) (*model.League, error) {
	return s.leagueRepo.FindByID(ctx, leagueID)
}

func (s *LeagueService) Join(ctx context.Context, leagueID, userID string) (*model.League, error) {
	league, err := s.leagueRepo.FindByID(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if err := s.leagueRepo.AddMember(ctx, nil, league.ID, userID); err != nil {
		return nil, common.Errorf("failed to join league: %w", err)
	}
	return league, nil
}

func (s *LeagueService) ListMembers(ctx context.Context, leagueID, userID string) ([]model.LeagueMember, error) {
	if _, err := requireMember(ctx, s.leagueRepo, leagueID, userID); err != nil {
		return nil, err
	}
	return s.leagueRepo.ListMembers(ctx, leagueID)
}

// requireMember loads the league and fails with ErrForbidden for non-members.
func requireMember(ctx context.Context, repo repository.LeagueRepository, leagueID, userID string) (*model.League, error) {
	if leagueID == "" {
		return nil, fmt.Errorf("league_id is required: %w", common.ErrBadRequest)
	}
	league, err := repo.FindByID(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	ok, err := repo.IsMember(ctx, leagueID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not a member of league %s: %w", league.Slug, common.ErrForbidden)
	}
	return league, nil
}

func beginTx(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	if db == nil {
		return nil, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}
