// Package client talks to the step league HTTP API on behalf of one signed-in member.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stepleague/internal/common"
	"stepleague/internal/domain/model"
	"stepleague/internal/platform/verifier"
)

const defaultTimeout = 60 * time.Second

// ErrSignedOut is returned by every call made after SignOut.
var ErrSignedOut = fmt.Errorf("session signed out: %w", common.ErrUnauthorized)

// APIError is a non-2xx answer from the API. Error returns the server's message unchanged.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string { return e.Message }

// Unwrap maps the status back onto the sentinel the server derived it from.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return common.ErrValidation
	case http.StatusUnauthorized:
		return common.ErrUnauthorized
	case http.StatusForbidden:
		return common.ErrForbidden
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusConflict:
		return common.ErrConflict
	case http.StatusTooManyRequests:
		return common.ErrRateLimited
	case http.StatusServiceUnavailable:
		return common.ErrServiceUnavailable
	}
	return nil
}

// RetryAfter reports the server-suggested wait carried by a 429.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// Session is the explicit auth context every call goes through. It is created by
// Login (or NewSession with a stored token) and torn down by SignOut.
type Session struct {
	baseURL string
	token   string
	user    *model.User
	http    *http.Client
}

func NewSession(baseURL, token string, httpClient *http.Client) *Session {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Session{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

type loginRequest struct {
	LoginField string `json:"login_field"`
	Password   string `json:"password"`
}

type authResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Login exchanges credentials for a bearer token.
func Login(ctx context.Context, baseURL, loginField, password string, httpClient *http.Client) (*Session, error) {
	s := NewSession(baseURL, "", httpClient)
	var resp authResponse
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", loginRequest{LoginField: loginField, Password: password}, &resp, false); err != nil {
		return nil, err
	}
	s.token = resp.Token
	s.user = resp.User
	return s, nil
}

func (s *Session) Token() string { return s.token }

// User is nil for sessions restored from a stored token.
func (s *Session) User() *model.User { return s.user }

func (s *Session) BaseURL() string { return s.baseURL }

// SignOut drops the token; the session cannot be reused afterwards.
func (s *Session) SignOut() {
	s.token = ""
	s.user = nil
}

func (s *Session) SignedIn() bool { return s.token != "" }

type SignedUpload struct {
	UploadURL string `json:"upload_url"`
	Path      string `json:"path"`
}

func (s *Session) SignUpload(ctx context.Context, contentType string, size int64) (*SignedUpload, error) {
	req := struct {
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
	}{contentType, size}
	var out SignedUpload
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/uploads/sign", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutObject sends the file to a signed URL; the URL itself carries the authorization.
func (s *Session) PutObject(ctx context.Context, uploadURL, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))
	return s.send(req, nil)
}

type SubmissionInput struct {
	LeagueID  string     `json:"league_id"`
	ForDate   model.Date `json:"for_date"`
	Steps     int        `json:"steps"`
	ProofPath *string    `json:"proof_path,omitempty"`
	Overwrite bool       `json:"overwrite"`
}

func (s *Session) CreateSubmission(ctx context.Context, in SubmissionInput) (*model.Submission, error) {
	var out model.Submission
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/submissions", in, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the server to run the AI check now. A 429 comes back as an
// *APIError wrapping common.ErrRateLimited.
func (s *Session) Verify(ctx context.Context, submissionID string) (*model.Submission, error) {
	var out model.Submission
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/submissions/"+url.PathEscape(submissionID)+"/verify", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) League(ctx context.Context, slugOrID string) (*model.League, error) {
	var out model.League
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/leagues/"+url.PathEscape(slugOrID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

type LeaderboardQuery struct {
	From        model.Date
	To          model.Date
	CompareFrom model.Date
	CompareTo   model.Date
	SortBy      string
}

type Leaderboard struct {
	LeagueID    string                   `json:"league_id"`
	From        model.Date               `json:"from"`
	To          model.Date               `json:"to"`
	CompareFrom model.Date               `json:"compare_from"`
	CompareTo   model.Date               `json:"compare_to"`
	SortBy      string                   `json:"sort"`
	Entries     []model.LeaderboardEntry `json:"entries"`
}

func (s *Session) Leaderboard(ctx context.Context, leagueID string, q LeaderboardQuery) (*Leaderboard, error) {
	v := url.Values{}
	for name, d := range map[string]model.Date{"from": q.From, "to": q.To, "compare_from": q.CompareFrom, "compare_to": q.CompareTo} {
		if !d.IsZero() {
			v.Set(name, d.String())
		}
	}
	if q.SortBy != "" {
		v.Set("sort", q.SortBy)
	}
	path := "/api/v1/leagues/" + url.PathEscape(leagueID) + "/leaderboard"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out Leaderboard
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) doJSON(ctx context.Context, method, path string, in, out interface{}, auth bool) error {
	if auth && s.token == "" {
		return ErrSignedOut
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.send(req, out)
}

func (s *Session) send(req *http.Request, out interface{}) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body common.ErrorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else if msg := strings.TrimSpace(string(raw)); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = verifier.ParseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return apiErr
}
