package service

import (
	"context"
	"fmt"
	"time"

	"stepleague/internal/app/scoring"
	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository"
)

type LeaderboardService struct {
	leagueRepo     repository.LeagueRepository
	submissionRepo repository.SubmissionRepository
	recordRepo     repository.UserRecordRepository
	clock          func() time.Time
}

func NewLeaderboardService(
	leagueRepo repository.LeagueRepository,
	subRepo repository.SubmissionRepository,
	recordRepo repository.UserRecordRepository,
) *LeaderboardService {
	return &LeaderboardService{
		leagueRepo:     leagueRepo,
		submissionRepo: subRepo,
		recordRepo:     recordRepo,
		clock:          time.Now,
	}
}

type LeaderboardQuery struct {
	From        model.Date
	To          model.Date
	CompareFrom model.Date
	CompareTo   model.Date
	SortBy      scoring.SortKey
}

type LeaderboardResponse struct {
	LeagueID    string                   `json:"league_id"`
	From        model.Date               `json:"from"`
	To          model.Date               `json:"to"`
	CompareFrom model.Date               `json:"compare_from"`
	CompareTo   model.Date               `json:"compare_to"`
	SortBy      scoring.SortKey          `json:"sort"`
	Entries     []model.LeaderboardEntry `json:"entries"`
}

func (s *LeaderboardService) GetLeaderboard(ctx context.Context, userID, leagueID string, q LeaderboardQuery) (*LeaderboardResponse, error) {
	league, err := requireMember(ctx, s.leagueRepo, leagueID, userID)
	if err != nil {
		return nil, err
	}
	today := model.DateOf(s.clock())
	from, to, err := s.window(league, q.From, q.To, today)
	if err != nil {
		return nil, err
	}

	compare := !q.CompareFrom.IsZero() || !q.CompareTo.IsZero()
	if compare {
		if err := scoring.ValidateRange(q.CompareFrom, q.CompareTo); err != nil {
			return nil, fmt.Errorf("compare period: %w", err)
		}
	}
	switch q.SortBy {
	case "":
		q.SortBy = scoring.SortByTotalSteps
	case scoring.SortByTotalSteps, scoring.SortByImprovement:
	default:
		return nil, fmt.Errorf("unknown sort %q: %w", q.SortBy, common.ErrValidation)
	}

	current, err := s.submissionRepo.ListByLeagueRange(ctx, league.ID, from, to)
	if err != nil {
		return nil, common.Errorf("failed to load submissions: %w", err)
	}
	var baseline []model.Submission
	if compare {
		baseline, err = s.submissionRepo.ListByLeagueRange(ctx, league.ID, q.CompareFrom, q.CompareTo)
		if err != nil {
			return nil, common.Errorf("failed to load baseline submissions: %w", err)
		}
	}
	members, err := s.leagueRepo.ListMembers(ctx, league.ID)
	if err != nil {
		return nil, common.Errorf("failed to load members: %w", err)
	}

	records, err := s.userRecords(ctx, userIDs(members, current), today)
	if err != nil {
		return nil, err
	}

	entries := scoring.Score(scoring.Input{
		Current:  current,
		Baseline: baseline,
		Compare:  compare,
		Members:  members,
		Records:  records,
		SortBy:   q.SortBy,
	})

	return &LeaderboardResponse{
		LeagueID:    league.ID,
		From:        from,
		To:          to,
		CompareFrom: q.CompareFrom,
		CompareTo:   q.CompareTo,
		SortBy:      q.SortBy,
		Entries:     entries,
	}, nil
}

func (s *LeaderboardService) GetBreakdown(ctx context.Context, userID, leagueID string, from, to model.Date, groupBy string) (*model.Breakdown, error) {
	league, err := requireMember(ctx, s.leagueRepo, leagueID, userID)
	if err != nil {
		return nil, err
	}
	from, to, err = s.window(league, from, to, model.DateOf(s.clock()))
	if err != nil {
		return nil, err
	}

	rows, err := s.submissionRepo.ListByLeagueRange(ctx, league.ID, from, to)
	if err != nil {
		return nil, common.Errorf("failed to load submissions: %w", err)
	}
	members, err := s.leagueRepo.ListMembers(ctx, league.ID)
	if err != nil {
		return nil, common.Errorf("failed to load members: %w", err)
	}
	return scoring.BuildBreakdown(rows, members, from, to, groupBy)
}

// window fills missing bounds from the league, never reaching past today, and
// clamps explicit bounds to the league's own dates.
func (s *LeaderboardService) window(league *model.League, from, to, today model.Date) (model.Date, model.Date, error) {
	if from.After(league.EndDate) || (!to.IsZero() && to.Before(league.StartDate)) {
		return from, to, fmt.Errorf("range %s to %s is outside the league (%s to %s): %w",
			from, to, league.StartDate, league.EndDate, common.ErrValidation)
	}
	if from.IsZero() || from.Before(league.StartDate) {
		from = league.StartDate
	}
	if to.IsZero() {
		to = league.EndDate
		if today.Before(to) {
			to = today
		}
		if to.Before(from) {
			to = from
		}
	} else if to.After(league.EndDate) {
		to = league.EndDate
	}
	return from, to, scoring.ValidateRange(from, to)
}

func (s *LeaderboardService) userRecords(ctx context.Context, ids []string, today model.Date) (map[string]model.UserRecord, error) {
	lifetime, err := s.recordRepo.LifetimeSteps(ctx, ids)
	if err != nil {
		return nil, common.Errorf("failed to load lifetime steps: %w", err)
	}
	dates, err := s.recordRepo.SubmissionDates(ctx, ids, today)
	if err != nil {
		return nil, common.Errorf("failed to load submission history: %w", err)
	}
	records := make(map[string]model.UserRecord, len(ids))
	for _, id := range ids {
		records[id] = model.UserRecord{
			UserID:        id,
			CurrentStreak: scoring.CurrentStreak(dates[id], today),
			LifetimeSteps: lifetime[id],
		}
	}
	return records, nil
}

func userIDs(members []model.LeagueMember, rows []model.Submission) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range members {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			ids = append(ids, m.UserID)
		}
	}
	for _, r := range rows {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	return ids
}
