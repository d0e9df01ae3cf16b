package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"stepleague/internal/app/service"
	"stepleague/internal/common/security"
	"stepleague/internal/domain/model"
	"stepleague/internal/domain/repository/memrepo"
	"stepleague/internal/platform/logger"
	"stepleague/internal/platform/storage"
	"stepleague/internal/platform/verifier"
)

type switchVerifier struct {
	next verifier.Outcome
}

func (v *switchVerifier) Verify(ctx context.Context, req verifier.Request) verifier.Outcome {
	return v.next
}

type recordingQueue struct {
	jobs []string
}

func (q *recordingQueue) Enqueue(ctx context.Context, jobID string) error {
	q.jobs = append(q.jobs, jobID)
	return nil
}

type testAPI struct {
	handler  http.Handler
	store    *memrepo.Store
	tokens   *security.TokenService
	verifier *switchVerifier
	queue    *recordingQueue
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger.SetLevel(logger.LevelError)
	t.Cleanup(func() { logger.SetLevel(logger.LevelInfo) })

	local, err := storage.NewLocalStore(t.TempDir(), "http://steps.test")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	a := &testAPI{
		store:    memrepo.New(),
		tokens:   security.NewTokenService([]byte("router-secret"), time.Hour, 15*time.Minute),
		verifier: &switchVerifier{next: verifier.Verified{Result: model.VerificationResult{Verified: true}}},
		queue:    &recordingQueue{},
	}
	st := a.store
	a.handler = NewRouter(a.tokens, Services{
		Auth:         service.NewAuthService(st.Users(), a.tokens),
		League:       service.NewLeagueService(st.Leagues(), nil),
		Leaderboard:  service.NewLeaderboardService(st.Leagues(), st.Submissions(), st.Records()),
		Submission:   service.NewSubmissionService(st.Submissions(), st.Leagues()),
		Verification: service.NewVerificationService(st.Submissions(), local, a.verifier, nil, 250),
		Upload:       service.NewUploadService(a.tokens, local, "http://steps.test", 1024),
		Jobs:         service.NewVerificationJobService(st.Jobs(), st.Submissions(), a.queue),
	}, local)
	return a
}

func (a *testAPI) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (a *testAPI) signup(t *testing.T, name string) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/auth/signup", "", service.SignupRequest{
		Username: name, Email: name + "@example.com", Password: "walking-is-good",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", name, rec.Code, rec.Body.String())
	}
	var resp service.AuthResponse
	decode(t, rec, &resp)
	return resp.User.ID, resp.Token
}

func (a *testAPI) admin(t *testing.T) string {
	t.Helper()
	u := &model.User{ID: "admin-id", Username: "admin", Email: "admin@example.com", Role: model.RoleAdmin}
	if err := a.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	tok, err := a.tokens.GenerateToken(u.ID, u.Role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)
	if rec := a.do(t, http.MethodGet, "/api/v1/submissions?league_id=x", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/submissions?league_id=x", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", rec.Code)
	}

	upload, err := a.tokens.SignUpload(security.UploadGrant{UserID: "u", Path: "proofs/u/x.png", ContentType: "image/png"})
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/submissions?league_id=x", upload, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("upload token as session = %d, want 401", rec.Code)
	}
}

func TestSubmissionFlow(t *testing.T) {
	a := newTestAPI(t)
	adminTok := a.admin(t)
	_, aliceTok := a.signup(t, "alice")
	_, bobTok := a.signup(t, "bob")

	today := model.DateOf(time.Now())
	create := service.CreateLeagueRequest{
		Name:      "Office Steps",
		StartDate: today.AddDays(-5),
		EndDate:   today.AddDays(5),
	}
	if rec := a.do(t, http.MethodPost, "/api/v1/leagues", aliceTok, create); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin create = %d, want 403", rec.Code)
	}
	rec := a.do(t, http.MethodPost, "/api/v1/leagues", adminTok, create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create league: %d %s", rec.Code, rec.Body.String())
	}
	var league model.League
	decode(t, rec, &league)
	if league.Slug != "office-steps" {
		t.Fatalf("slug = %q", league.Slug)
	}

	if rec := a.do(t, http.MethodGet, "/api/v1/leagues/office-steps", aliceTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("get by slug = %d", rec.Code)
	}
	for _, tok := range []string{aliceTok, bobTok} {
		if rec := a.do(t, http.MethodPost, "/api/v1/leagues/"+league.ID+"/join", tok, nil); rec.Code != http.StatusOK {
			t.Fatalf("join = %d %s", rec.Code, rec.Body.String())
		}
	}

	// upload a proof through the signed URL
	rec = a.do(t, http.MethodPost, "/api/v1/uploads/sign", aliceTok, service.SignUploadRequest{ContentType: "image/png", Size: 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign: %d %s", rec.Code, rec.Body.String())
	}
	var signed service.SignUploadResponse
	decode(t, rec, &signed)
	u, err := url.Parse(signed.UploadURL)
	if err != nil {
		t.Fatalf("parse upload url: %v", err)
	}
	put := httptest.NewRequest(http.MethodPut, u.RequestURI(), strings.NewReader("\x89PNG"))
	put.Header.Set("Content-Type", "image/png")
	putRec := httptest.NewRecorder()
	a.handler.ServeHTTP(putRec, put)
	if putRec.Code != http.StatusOK {
		t.Fatalf("put object: %d %s", putRec.Code, putRec.Body.String())
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/uploads/object/"+signed.Path, "", nil); rec.Code != http.StatusOK || rec.Body.String() != "\x89PNG" {
		t.Fatalf("get object = %d %q", rec.Code, rec.Body.String())
	}

	body := service.CreateSubmissionRequest{LeagueID: league.ID, ForDate: today, Steps: 8000, ProofPath: &signed.Path}
	rec = a.do(t, http.MethodPost, "/api/v1/submissions", aliceTok, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create submission: %d %s", rec.Code, rec.Body.String())
	}
	var sub model.Submission
	decode(t, rec, &sub)

	first := a.do(t, http.MethodPost, "/api/v1/submissions", aliceTok, body)
	second := a.do(t, http.MethodPost, "/api/v1/submissions", aliceTok, body)
	if first.Code != http.StatusConflict || second.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d, %d; want 409 twice", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("409 bodies differ: %q vs %q", first.Body.String(), second.Body.String())
	}

	body.Overwrite = true
	body.Steps = 9000
	rec = a.do(t, http.MethodPost, "/api/v1/submissions", aliceTok, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("overwrite: %d %s", rec.Code, rec.Body.String())
	}
	var overwritten model.Submission
	decode(t, rec, &overwritten)
	if overwritten.ID != sub.ID || overwritten.Steps != 9000 {
		t.Fatalf("overwritten = %+v, want id %s with 9000 steps", overwritten, sub.ID)
	}

	verifyPath := "/api/v1/submissions/" + sub.ID + "/verify"
	if rec := a.do(t, http.MethodPost, verifyPath, bobTok, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("verify by non-owner = %d, want 403", rec.Code)
	}

	a.verifier.next = verifier.RateLimited{RetryAfter: 7 * time.Second}
	rec = a.do(t, http.MethodPost, verifyPath, aliceTok, nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "7" {
		t.Fatalf("rate limited verify = %d Retry-After %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	a.verifier.next = verifier.Failed{Message: "image too blurry to read"}
	rec = a.do(t, http.MethodPost, verifyPath, aliceTok, nil)
	var errBody struct {
		Error string `json:"error"`
	}
	decode(t, rec, &errBody)
	if rec.Code != http.StatusServiceUnavailable || errBody.Error != "image too blurry to read" {
		t.Fatalf("failed verify = %d %q", rec.Code, errBody.Error)
	}

	a.verifier.next = verifier.Verified{Result: model.VerificationResult{Verified: true}}
	rec = a.do(t, http.MethodPost, verifyPath, aliceTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rec.Code, rec.Body.String())
	}
	if stored, _ := a.store.Submission(sub.ID); !stored.IsVerified() {
		t.Fatalf("stored submission not verified: %+v", stored)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/leagues/"+league.ID+"/leaderboard", bobTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard: %d %s", rec.Code, rec.Body.String())
	}
	var board service.LeaderboardResponse
	decode(t, rec, &board)
	if len(board.Entries) != 3 || board.Entries[0].Username != "alice" || board.Entries[0].TotalSteps != 9000 {
		t.Fatalf("leaderboard entries = %+v", board.Entries)
	}

	if rec := a.do(t, http.MethodGet, "/api/v1/leagues/"+league.ID+"/leaderboard?sort=shoe_size", bobTok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown sort = %d, want 400", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/leagues/"+league.ID+"/leaderboard?from=yesterday", bobTok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date = %d, want 400", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/leagues/"+league.ID+"/breakdown?group=fortnight", bobTok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad group = %d, want 400", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/leagues/"+league.ID+"/breakdown?group=3days", bobTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("breakdown = %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodPost, "/api/v1/submissions/"+sub.ID+"/flag", bobTok, service.FlagSubmissionRequest{Reason: "suspiciously round"})
	if rec.Code != http.StatusOK {
		t.Fatalf("flag: %d %s", rec.Code, rec.Body.String())
	}

	reverify := "/api/v1/admin/submissions/" + sub.ID + "/reverify"
	if rec := a.do(t, http.MethodPost, reverify, bobTok, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("reverify by user = %d, want 403", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, reverify, adminTok, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("reverify: %d %s", rec.Code, rec.Body.String())
	}
	if len(a.queue.jobs) != 1 {
		t.Fatalf("queued jobs = %v", a.queue.jobs)
	}
}
