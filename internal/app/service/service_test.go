package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stepleague/internal/common"
	"stepleague/internal/common/security"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository/memrepo"
	"stepleague/internal/platform/storage"
	"stepleague/internal/platform/verifier"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fixture struct {
	store   *memrepo.Store
	tokens  *security.TokenService
	leagues *LeagueService
	subs    *SubmissionService
	league  *model.League
	alice   *model.User
	bob     *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memrepo.New(),
		tokens: security.NewTokenService([]byte("test-secret"), time.Hour, 15*time.Minute),
	}
	f.leagues = NewLeagueService(f.store.Leagues(), nil)
	f.subs = NewSubmissionService(f.store.Submissions(), f.store.Leagues())
	f.subs.clock = fixedClock

	f.alice = f.addUser(t, "alice")
	f.bob = f.addUser(t, "bob")

	league, err := f.leagues.CreateLeague(context.Background(), f.alice.ID, CreateLeagueRequest{
		Name:      "March Madness",
		StartDate: model.NewDate(2025, time.March, 1),
		EndDate:   model.NewDate(2025, time.March, 31),
	})
	if err != nil {
		t.Fatalf("CreateLeague: %v", err)
	}
	f.league = league
	if _, err := f.leagues.Join(context.Background(), league.ID, f.bob.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	return f
}

func (f *fixture) addUser(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{ID: name + "-id", Username: name, Email: name + "@example.com", Role: model.RoleUser}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *fixture) submit(t *testing.T, user *model.User, date model.Date, steps int, proof *string) *model.Submission {
	t.Helper()
	sub, err := f.subs.CreateSubmission(context.Background(), user.ID, CreateSubmissionRequest{
		LeagueID:  f.league.ID,
		ForDate:   date,
		Steps:     steps,
		ProofPath: proof,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	return sub
}

func strPtr(s string) *string { return &s }

func TestAuthSignupAndLogin(t *testing.T) {
	store := memrepo.New()
	svc := NewAuthService(store.Users(), security.NewTokenService([]byte("k"), time.Hour, time.Minute))
	ctx := context.Background()

	resp, err := svc.Signup(ctx, SignupRequest{Username: "carol", Email: "Carol@Example.com", Password: "longenough"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if resp.Token == "" || resp.User.HashedPassword != "" || resp.User.Email != "carol@example.com" {
		t.Fatalf("signup response = %+v", resp.User)
	}

	if _, err := svc.Signup(ctx, SignupRequest{Username: "carol", Email: "c2@example.com", Password: "longenough"}); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("duplicate signup err = %v, want ErrConflict", err)
	}
	if _, err := svc.Signup(ctx, SignupRequest{Username: "dave", Email: "d@example.com", Password: "short"}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("short password err = %v, want ErrValidation", err)
	}

	for _, field := range []string{"carol", "carol@example.com"} {
		if _, err := svc.Login(ctx, LoginRequest{LoginField: field, Password: "longenough"}); err != nil {
			t.Fatalf("Login(%q): %v", field, err)
		}
	}
	if _, err := svc.Login(ctx, LoginRequest{LoginField: "carol", Password: "wrong-password"}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("bad password err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{LoginField: "nobody", Password: "whatever1"}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("unknown user err = %v, want ErrUnauthorized", err)
	}
}

func TestCreateLeague(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.league.Slug != "march-madness" {
		t.Fatalf("slug = %q", f.league.Slug)
	}
	if ok, _ := f.store.Leagues().IsMember(ctx, f.league.ID, f.alice.ID); !ok {
		t.Fatal("creator should be a member")
	}

	again, err := f.leagues.CreateLeague(ctx, f.bob.ID, CreateLeagueRequest{
		Name:      "March Madness",
		StartDate: model.NewDate(2025, time.March, 1),
		EndDate:   model.NewDate(2025, time.March, 31),
	})
	if err != nil {
		t.Fatalf("second CreateLeague: %v", err)
	}
	if again.Slug == f.league.Slug || !strings.HasPrefix(again.Slug, "march-madness-") {
		t.Fatalf("disambiguated slug = %q", again.Slug)
	}

	_, err = f.leagues.CreateLeague(ctx, f.alice.ID, CreateLeagueRequest{
		Name:      "Backwards",
		StartDate: model.NewDate(2025, time.March, 31),
		EndDate:   model.NewDate(2025, time.March, 1),
	})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("inverted dates err = %v, want ErrValidation", err)
	}
}

func TestCreateSubmissionConflictAndOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := model.NewDate(2025, time.March, 5)

	first := f.submit(t, f.alice, day, 5000, nil)

	req := CreateSubmissionRequest{LeagueID: f.league.ID, ForDate: day, Steps: 7000}
	_, err1 := f.subs.CreateSubmission(ctx, f.alice.ID, req)
	_, err2 := f.subs.CreateSubmission(ctx, f.alice.ID, req)
	if !errors.Is(err1, common.ErrConflict) || !errors.Is(err2, common.ErrConflict) {
		t.Fatalf("errs = %v / %v, want ErrConflict", err1, err2)
	}
	if err1.Error() != err2.Error() {
		t.Fatalf("repeat conflict differs: %q vs %q", err1, err2)
	}

	verified := true
	if err := f.store.Submissions().UpdateVerification(ctx, first.ID, model.VerificationResult{Verified: verified}); err != nil {
		t.Fatalf("UpdateVerification: %v", err)
	}

	req.Overwrite = true
	got, err := f.subs.CreateSubmission(ctx, f.alice.ID, req)
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("overwrite id = %s, want %s", got.ID, first.ID)
	}
	stored, _ := f.store.Submission(first.ID)
	if stored.Steps != 7000 || stored.Verified != nil {
		t.Fatalf("stored after overwrite = %+v", stored)
	}
}

func TestCreateSubmissionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := f.addUser(t, "eve")

	cases := []struct {
		name string
		user string
		req  CreateSubmissionRequest
		want error
	}{
		{"negative steps", f.alice.ID, CreateSubmissionRequest{LeagueID: f.league.ID, ForDate: model.NewDate(2025, 3, 2), Steps: -1}, common.ErrValidation},
		{"missing date", f.alice.ID, CreateSubmissionRequest{LeagueID: f.league.ID, Steps: 1}, common.ErrBadRequest},
		{"future date", f.alice.ID, CreateSubmissionRequest{LeagueID: f.league.ID, ForDate: model.NewDate(2025, 3, 20), Steps: 1}, common.ErrValidation},
		{"before league", f.alice.ID, CreateSubmissionRequest{LeagueID: f.league.ID, ForDate: model.NewDate(2025, 2, 20), Steps: 1}, common.ErrValidation},
		{"not a member", outsider.ID, CreateSubmissionRequest{LeagueID: f.league.ID, ForDate: model.NewDate(2025, 3, 2), Steps: 1}, common.ErrForbidden},
		{"unknown league", f.alice.ID, CreateSubmissionRequest{LeagueID: "nope", ForDate: model.NewDate(2025, 3, 2), Steps: 1}, common.ErrNotFound},
		{"someone else's proof", f.alice.ID, CreateSubmissionRequest{LeagueID: f.league.ID, ForDate: model.NewDate(2025, 3, 2), Steps: 1, ProofPath: strPtr("proofs/bob-id/x.jpg")}, common.ErrForbidden},
		{"traversal proof", f.alice.ID, CreateSubmissionRequest{LeagueID: f.league.ID, ForDate: model.NewDate(2025, 3, 2), Steps: 1, ProofPath: strPtr("../x.jpg")}, common.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.subs.CreateSubmission(ctx, tc.user, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFlagRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.submit(t, f.alice, model.NewDate(2025, 3, 3), 90000, nil)

	if _, err := f.subs.Flag(ctx, f.bob.ID, sub.ID, FlagSubmissionRequest{Reason: "  "}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	got, err := f.subs.Flag(ctx, f.bob.ID, sub.ID, FlagSubmissionRequest{Reason: "too many steps"})
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if !got.Flagged || got.FlagReason == nil || *got.FlagReason != "too many steps" {
		t.Fatalf("flagged = %+v", got)
	}
}

type scriptedVerifier struct {
	outcomes []verifier.Outcome
	calls    []verifier.Request
}

func (v *scriptedVerifier) Verify(ctx context.Context, req verifier.Request) verifier.Outcome {
	v.calls = append(v.calls, req)
	out := v.outcomes[0]
	if len(v.outcomes) > 1 {
		v.outcomes = v.outcomes[1:]
	}
	return out
}

type denyLimiter struct{ retry time.Duration }

func (l denyLimiter) Allow(context.Context, string) error {
	return &common.RateLimitError{RetryAfter: l.retry}
}

func newLocalStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	ls, err := storage.NewLocalStore(t.TempDir(), "http://api.test")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return ls
}

func TestVerifySubmissionOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proof := storage.ProofPath(f.alice.ID, "p1", "jpg")
	sub := f.submit(t, f.alice, model.NewDate(2025, 3, 4), 8000, &proof)

	extracted := 7950
	v := &scriptedVerifier{outcomes: []verifier.Outcome{
		verifier.RateLimited{RetryAfter: 0},
		verifier.Failed{Message: "could not read the step count"},
		verifier.Verified{Result: model.VerificationResult{Verified: true, ExtractedSteps: &extracted}},
	}}
	svc := NewVerificationService(f.store.Submissions(), newLocalStore(t), v, nil, 250)

	_, err := svc.VerifySubmission(ctx, f.alice.ID, sub.ID)
	var rle *common.RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter != time.Second {
		t.Fatalf("err = %v, want RateLimitError with 1s floor", err)
	}
	if common.HTTPStatusFromError(err) != 429 {
		t.Fatalf("status = %d, want 429", common.HTTPStatusFromError(err))
	}

	_, err = svc.VerifySubmission(ctx, f.alice.ID, sub.ID)
	if err == nil || err.Error() != "could not read the step count" {
		t.Fatalf("err = %v, want verbatim verifier message", err)
	}
	if stored, _ := f.store.Submission(sub.ID); stored.Verified != nil {
		t.Fatal("failed verification must not touch the submission")
	}

	got, err := svc.VerifySubmission(ctx, f.alice.ID, sub.ID)
	if err != nil {
		t.Fatalf("VerifySubmission: %v", err)
	}
	if !got.IsVerified() || *got.ExtractedSteps != 7950 {
		t.Fatalf("verified submission = %+v", got)
	}
	if stored, _ := f.store.Submission(sub.ID); !stored.IsVerified() {
		t.Fatal("verification result not persisted")
	}

	last := v.calls[len(v.calls)-1]
	if last.ClaimedSteps != 8000 || last.Tolerance != 250 || last.ImageURL != "http://api.test/api/v1/uploads/object/"+proof {
		t.Fatalf("verifier request = %+v", last)
	}
}

func TestVerifySubmissionGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proof := storage.ProofPath(f.alice.ID, "p1", "jpg")
	withProof := f.submit(t, f.alice, model.NewDate(2025, 3, 4), 8000, &proof)
	noProof := f.submit(t, f.alice, model.NewDate(2025, 3, 5), 8000, nil)

	v := &scriptedVerifier{outcomes: []verifier.Outcome{verifier.Verified{}}}
	svc := NewVerificationService(f.store.Submissions(), newLocalStore(t), v, nil, 250)

	if _, err := svc.VerifySubmission(ctx, f.bob.ID, withProof.ID); !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("non-owner err = %v", err)
	}
	if _, err := svc.VerifySubmission(ctx, f.alice.ID, noProof.ID); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("no proof err = %v", err)
	}

	limited := NewVerificationService(f.store.Submissions(), newLocalStore(t), v, denyLimiter{retry: 30 * time.Second}, 250)
	_, err := limited.VerifySubmission(ctx, f.alice.ID, withProof.ID)
	if common.RetryAfterSeconds(err) != "30" {
		t.Fatalf("limited err = %v, want Retry-After 30", err)
	}
	if len(v.calls) != 0 {
		t.Fatalf("verifier called %d times, want 0", len(v.calls))
	}
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocker) AcquireLock(ctx context.Context, submissionID string) (string, bool, error) {
	if l.held[submissionID] {
		return "", false, nil
	}
	l.held[submissionID] = true
	return "tok-" + submissionID, true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, submissionID, token string) (bool, error) {
	delete(l.held, submissionID)
	l.released = append(l.released, token)
	return true, nil
}

func TestVerifySubmissionSharesWorkerLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proof := storage.ProofPath(f.alice.ID, "p1", "jpg")
	sub := f.submit(t, f.alice, model.NewDate(2025, 3, 4), 8000, &proof)

	v := &scriptedVerifier{outcomes: []verifier.Outcome{verifier.Verified{Result: model.VerificationResult{Verified: true}}}}
	locks := &fakeLocker{held: map[string]bool{sub.ID: true}}
	svc := NewVerificationService(f.store.Submissions(), newLocalStore(t), v, nil, 250).WithLocker(locks)

	_, err := svc.VerifySubmission(ctx, f.alice.ID, sub.ID)
	if !errors.Is(err, common.ErrRateLimited) || common.RetryAfterSeconds(err) != "2" {
		t.Fatalf("busy err = %v, want rate limited with Retry-After 2", err)
	}
	if len(v.calls) != 0 {
		t.Fatalf("verifier called %d times while locked, want 0", len(v.calls))
	}

	delete(locks.held, sub.ID)
	if _, err := svc.VerifySubmission(ctx, f.alice.ID, sub.ID); err != nil {
		t.Fatalf("VerifySubmission: %v", err)
	}
	if len(v.calls) != 1 || len(locks.released) != 1 || locks.held[sub.ID] {
		t.Fatalf("calls = %d, released = %v, held = %v", len(v.calls), locks.released, locks.held)
	}
}

type fakeQueue struct {
	pushed []string
	err    error
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobID string) error {
	if q.err != nil {
		return q.err
	}
	q.pushed = append(q.pushed, jobID)
	return nil
}

func TestEnqueueReverification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proof := storage.ProofPath(f.alice.ID, "p1", "jpg")
	sub := f.submit(t, f.alice, model.NewDate(2025, 3, 4), 8000, &proof)

	q := &fakeQueue{}
	svc := NewVerificationJobService(f.store.Jobs(), f.store.Submissions(), q)
	job, err := svc.EnqueueReverification(ctx, sub.ID)
	if err != nil {
		t.Fatalf("EnqueueReverification: %v", err)
	}
	if len(q.pushed) != 1 || q.pushed[0] != job.ID || job.Status != model.JobStatusQueued {
		t.Fatalf("pushed = %v, job = %+v", q.pushed, job)
	}

	broken := NewVerificationJobService(f.store.Jobs(), f.store.Submissions(), &fakeQueue{err: errors.New("redis down")})
	if _, err := broken.EnqueueReverification(ctx, sub.ID); err == nil {
		t.Fatal("expected queue failure")
	}
}

func TestLeaderboardService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := f.addUser(t, "carol")
	if _, err := f.leagues.Join(ctx, f.league.ID, carol.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// alice submits every day up to today: a 10-day streak
	for d := 1; d <= 10; d++ {
		f.submit(t, f.alice, model.NewDate(2025, 3, d), 1000, nil)
	}
	f.submit(t, f.bob, model.NewDate(2025, 3, 9), 25000, nil)

	svc := NewLeaderboardService(f.store.Leagues(), f.store.Submissions(), f.store.Records())
	svc.clock = fixedClock

	resp, err := svc.GetLeaderboard(ctx, f.alice.ID, f.league.ID, LeaderboardQuery{})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if !resp.To.Equal(model.NewDate(2025, 3, 10)) {
		t.Fatalf("window end = %s, want today", resp.To)
	}
	if len(resp.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(resp.Entries))
	}
	top, second, idle := resp.Entries[0], resp.Entries[1], resp.Entries[2]
	if top.UserID != f.bob.ID || !top.HasBadge(model.BadgeLeader) {
		t.Fatalf("top = %+v", top)
	}
	if second.UserID != f.alice.ID || !second.HasBadge(model.BadgeStreak7) || second.HasBadge(model.BadgeStreak3) {
		t.Fatalf("alice = %+v", second)
	}
	if idle.UserID != carol.ID || idle.TotalSteps != 0 || idle.Rank != 3 {
		t.Fatalf("idle = %+v", idle)
	}

	_, err = svc.GetLeaderboard(ctx, f.alice.ID, f.league.ID, LeaderboardQuery{SortBy: "nonsense"})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("bad sort err = %v", err)
	}
	_, err = svc.GetLeaderboard(ctx, f.alice.ID, f.league.ID, LeaderboardQuery{CompareFrom: model.NewDate(2025, 2, 1)})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("half compare window err = %v", err)
	}
}

func TestLeaderboardCompare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, f.alice, model.NewDate(2025, 3, 1), 8000, nil)
	f.submit(t, f.alice, model.NewDate(2025, 3, 8), 10000, nil)
	f.submit(t, f.bob, model.NewDate(2025, 3, 8), 12000, nil)

	svc := NewLeaderboardService(f.store.Leagues(), f.store.Submissions(), f.store.Records())
	svc.clock = fixedClock

	resp, err := svc.GetLeaderboard(ctx, f.bob.ID, f.league.ID, LeaderboardQuery{
		From:        model.NewDate(2025, 3, 8),
		To:          model.NewDate(2025, 3, 8),
		CompareFrom: model.NewDate(2025, 3, 1),
		CompareTo:   model.NewDate(2025, 3, 1),
		SortBy:      "improvement",
	})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	first := resp.Entries[0]
	if first.UserID != f.alice.ID || first.ImprovementPct == nil || *first.ImprovementPct != 25 {
		t.Fatalf("first = %+v", first)
	}
	if !first.HasBadge(model.BadgeMostImproved) {
		t.Fatalf("alice badges = %v", first.Badges)
	}
	for _, e := range resp.Entries {
		if e.UserID == f.bob.ID && e.ImprovementPct != nil {
			t.Fatalf("bob improvement = %v, want nil (no baseline)", *e.ImprovementPct)
		}
	}
}

func TestBreakdownService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, f.alice, model.NewDate(2025, 3, 1), 1000, nil)

	svc := NewLeaderboardService(f.store.Leagues(), f.store.Submissions(), f.store.Records())
	svc.clock = fixedClock

	got, err := svc.GetBreakdown(ctx, f.alice.ID, f.league.ID, model.NewDate(2025, 3, 1), model.NewDate(2025, 3, 7), "week")
	if err != nil {
		t.Fatalf("GetBreakdown: %v", err)
	}
	if len(got.Groups) != 1 || len(got.Members) != 2 {
		t.Fatalf("breakdown = %+v", got)
	}
	if _, err := svc.GetBreakdown(ctx, f.alice.ID, f.league.ID, model.NewDate(2025, 3, 7), model.NewDate(2025, 3, 1), "day"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("inverted range err = %v", err)
	}
	wide, err := svc.GetBreakdown(ctx, f.alice.ID, f.league.ID, model.NewDate(1000, 1, 1), model.NewDate(9999, 12, 31), "day")
	if err != nil {
		t.Fatalf("wide GetBreakdown: %v", err)
	}
	if !wide.Start.Equal(f.league.StartDate) || !wide.End.Equal(f.league.EndDate) || wide.TotalDays != 31 || len(wide.Groups) != 31 {
		t.Fatalf("wide breakdown = %s to %s, %d days, %d groups", wide.Start, wide.End, wide.TotalDays, len(wide.Groups))
	}
	if _, err := svc.GetBreakdown(ctx, f.alice.ID, f.league.ID, model.NewDate(2024, 1, 1), model.NewDate(2024, 1, 31), "day"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("range outside league err = %v", err)
	}
	_, err = svc.GetLeaderboard(ctx, f.alice.ID, f.league.ID, LeaderboardQuery{
		CompareFrom: model.NewDate(1000, 1, 1),
		CompareTo:   model.NewDate(9999, 12, 31),
	})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("huge compare window err = %v", err)
	}
}

func TestUploadSignAndStore(t *testing.T) {
	tokens := security.NewTokenService([]byte("k"), time.Hour, time.Minute)
	store := newLocalStore(t)
	svc := NewUploadService(tokens, store, "http://api.test/", 16)
	ctx := context.Background()

	if _, err := svc.SignUpload(ctx, "u1", SignUploadRequest{ContentType: "application/pdf", Size: 4}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("pdf err = %v", err)
	}
	if _, err := svc.SignUpload(ctx, "u1", SignUploadRequest{ContentType: "image/png", Size: 17}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("oversize sign err = %v", err)
	}

	signed, err := svc.SignUpload(ctx, "u1", SignUploadRequest{ContentType: "image/png", Size: 4})
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	if !strings.HasPrefix(signed.Path, "proofs/u1/") || !strings.HasSuffix(signed.Path, ".png") {
		t.Fatalf("path = %q", signed.Path)
	}
	if !strings.HasPrefix(signed.UploadURL, "http://api.test/api/v1/uploads/object?token=") {
		t.Fatalf("upload url = %q", signed.UploadURL)
	}
	token := signed.UploadURL[strings.Index(signed.UploadURL, "token=")+len("token="):]

	if _, err := svc.StoreObject(ctx, token, "image/jpeg", strings.NewReader("png!")); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("content type mismatch err = %v", err)
	}
	path, err := svc.StoreObject(ctx, token, "image/png", strings.NewReader("png!"))
	if err != nil || path != signed.Path {
		t.Fatalf("StoreObject = %q, %v", path, err)
	}
	again, err := svc.StoreObject(ctx, token, "image/png", strings.NewReader("png2"))
	if err != nil || again != signed.Path {
		t.Fatalf("repeat StoreObject = %q, %v, want the same path", again, err)
	}
	if _, err := svc.StoreObject(ctx, token, "", strings.NewReader(strings.Repeat("x", 17))); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("oversize body err = %v", err)
	}
	if _, err := svc.StoreObject(ctx, "garbage", "", strings.NewReader("x")); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("bad token err = %v", err)
	}
}
