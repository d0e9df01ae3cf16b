// Package memrepo holds in-memory repositories for tests.
package memrepo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository"
)

// Store is one shared in-memory database; the repository views below read and write it.
type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	users       map[string]model.User
	leagues     map[string]model.League
	members     map[string][]model.LeagueMember
	submissions map[string]model.Submission
	jobs        map[string]model.VerificationJob
}

func New() *Store {
	return &Store{
		now:         time.Now,
		users:       make(map[string]model.User),
		leagues:     make(map[string]model.League),
		members:     make(map[string][]model.LeagueMember),
		submissions: make(map[string]model.Submission),
		jobs:        make(map[string]model.VerificationJob),
	}
}

func (s *Store) Users() repository.UserRepository { return userRepo{s} }
func (s *Store) Leagues() repository.LeagueRepository { return leagueRepo{s} }
func (s *Store) Submissions() repository.SubmissionRepository { return submissionRepo{s} }
func (s *Store) Jobs() repository.VerificationJobRepository { return jobRepo{s} }
func (s *Store) Records() repository.UserRecordRepository { return recordRepo{s} }

// Job returns a copy of the stored job, for assertions.
func (s *Store) Job(id string) (model.VerificationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Submission returns a copy of the stored submission, for assertions.
func (s *Store) Submission(id string) (model.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	return sub, ok
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, have := range r.s.users {
		if have.Username == u.Username || have.Email == u.Email {
			return fmt.Errorf("user with given username or email already exists: %w", common.ErrConflict)
		}
	}
	u.CreatedAt = r.s.now()
	u.UpdatedAt = u.CreatedAt
	r.s.users[u.ID] = *u
	return nil
}

func (r userRepo) find(match func(model.User) bool) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Username == username })
}

func (r userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

type leagueRepo struct{ s *Store }

func (r leagueRepo) Create(ctx context.Context, tx *sql.Tx, l *model.League) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, have := range r.s.leagues {
		if have.Slug == l.Slug {
			return fmt.Errorf("league with this slug already exists: %w", common.ErrConflict)
		}
	}
	l.CreatedAt = r.s.now()
	r.s.leagues[l.ID] = *l
	return nil
}

func (r leagueRepo) FindByID(ctx context.Context, id string) (*model.League, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leagues[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &l, nil
}

func (r leagueRepo) FindBySlug(ctx context.Context, slug string) (*model.League, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.leagues {
		if l.Slug == slug {
			found := l
			return &found, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r leagueRepo) AddMember(ctx context.Context, tx *sql.Tx, leagueID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.members[leagueID] {
		if m.UserID == userID {
			return nil
		}
	}
	r.s.members[leagueID] = append(r.s.members[leagueID], model.LeagueMember{
		LeagueID: leagueID,
		UserID:   userID,
		Username: r.s.users[userID].Username,
		JoinedAt: r.s.now(),
	})
	return nil
}

func (r leagueRepo) IsMember(ctx context.Context, leagueID, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.members[leagueID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r leagueRepo) ListMembers(ctx context.Context, leagueID string) ([]model.LeagueMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.LeagueMember{}, r.s.members[leagueID]...), nil
}

type submissionRepo struct{ s *Store }

func (r submissionRepo) existing(sub *model.Submission) (model.Submission, bool) {
	for _, have := range r.s.submissions {
		if have.UserID == sub.UserID && have.LeagueID == sub.LeagueID && have.ForDate.Equal(sub.ForDate) {
			return have, true
		}
	}
	return model.Submission{}, false
}

func (r submissionRepo) Create(ctx context.Context, sub *model.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.existing(sub); ok {
		return fmt.Errorf("a submission for %s already exists: %w", sub.ForDate, common.ErrConflict)
	}
	sub.CreatedAt = r.s.now()
	sub.UpdatedAt = sub.CreatedAt
	r.s.submissions[sub.ID] = *sub
	return nil
}

func (r submissionRepo) Overwrite(ctx context.Context, sub *model.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if have, ok := r.existing(sub); ok {
		sub.ID = have.ID
		sub.CreatedAt = have.CreatedAt
		sub.Flagged = have.Flagged
		sub.FlagReason = have.FlagReason
	} else {
		sub.CreatedAt = r.s.now()
	}
	sub.UpdatedAt = r.s.now()
	sub.Verified = nil
	sub.ExtractedSteps = nil
	sub.VerificationNotes = nil
	r.s.submissions[sub.ID] = *sub
	return nil
}

func (r submissionRepo) withUsername(sub model.Submission) model.Submission {
	if u, ok := r.s.users[sub.UserID]; ok {
		name := u.Username
		sub.Username = &name
	}
	return sub
}

func (r submissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	sub = r.withUsername(sub)
	return &sub, nil
}

func (r submissionRepo) ListByLeagueRange(ctx context.Context, leagueID string, from, to model.Date) ([]model.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Submission{}
	for _, sub := range r.s.submissions {
		if sub.LeagueID == leagueID && !sub.ForDate.Before(from) && !sub.ForDate.After(to) {
			out = append(out, r.withUsername(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ForDate.Equal(out[j].ForDate) {
			return out[i].ForDate.Before(out[j].ForDate)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r submissionRepo) ListByUser(ctx context.Context, userID, leagueID string, from, to model.Date) ([]model.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Submission{}
	for _, sub := range r.s.submissions {
		if sub.UserID == userID && sub.LeagueID == leagueID && !sub.ForDate.Before(from) && !sub.ForDate.After(to) {
			out = append(out, r.withUsername(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ForDate.After(out[j].ForDate) })
	return out, nil
}

func (r submissionRepo) UpdateVerification(ctx context.Context, id string, res model.VerificationResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return common.ErrNotFound
	}
	v := res.Verified
	sub.Verified = &v
	sub.ExtractedSteps = res.ExtractedSteps
	sub.VerificationNotes = res.Notes
	sub.UpdatedAt = r.s.now()
	r.s.submissions[id] = sub
	return nil
}

func (r submissionRepo) Flag(ctx context.Context, id, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return common.ErrNotFound
	}
	sub.Flagged = true
	sub.FlagReason = &reason
	r.s.submissions[id] = sub
	return nil
}

type jobRepo struct{ s *Store }

func (r jobRepo) CreateJob(ctx context.Context, job *model.VerificationJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job.CreatedAt = r.s.now()
	job.UpdatedAt = job.CreatedAt
	r.s.jobs[job.ID] = *job
	return nil
}

func (r jobRepo) GetJobByID(ctx context.Context, id string) (*model.VerificationJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &j, nil
}

func (r jobRepo) UpdateJobStatus(ctx context.Context, id, status string, lastError *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	j.Status = status
	j.LastError = lastError
	j.UpdatedAt = r.s.now()
	r.s.jobs[id] = j
	return nil
}

func (r jobRepo) IncrementJobAttempts(ctx context.Context, id string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return 0, common.ErrNotFound
	}
	j.Attempts++
	r.s.jobs[id] = j
	return j.Attempts, nil
}

type recordRepo struct{ s *Store }

func (r recordRepo) LifetimeSteps(ctx context.Context, userIDs []string) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	best := make(map[string]int)
	for _, sub := range r.s.submissions {
		if !want[sub.UserID] {
			continue
		}
		key := sub.UserID + "|" + sub.ForDate.String()
		if sub.Steps > best[key] {
			best[key] = sub.Steps
		}
	}
	out := make(map[string]int64)
	for key, steps := range best {
		userID := key[:len(key)-len("|2006-01-02")]
		out[userID] += int64(steps)
	}
	return out, nil
}

func (r recordRepo) SubmissionDates(ctx context.Context, userIDs []string, upTo model.Date) (map[string][]model.Date, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	seen := make(map[string]bool)
	out := make(map[string][]model.Date)
	for _, sub := range r.s.submissions {
		key := sub.UserID + "|" + sub.ForDate.String()
		if !want[sub.UserID] || sub.ForDate.After(upTo) || seen[key] {
			continue
		}
		seen[key] = true
		out[sub.UserID] = append(out[sub.UserID], sub.ForDate)
	}
	return out, nil
}
