package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stepleague/internal/domain/model"
	"stepleague/internal/platform/config"
	"stepleague/internal/platform/logger"
)

// Request is what the AI service needs to check one proof image.
type Request struct {
	SubmissionID string `json:"submission_id"`
	ImageURL     string `json:"image_url"`
	ClaimedSteps int    `json:"claimed_steps"`
	ForDate      string `json:"for_date"`
	Tolerance    int    `json:"tolerance"`
}

// Outcome is one of Verified, RateLimited or Failed.
type Outcome interface {
	outcome()
}

// Verified means the service completed a check; Result.Verified may still be false.
type Verified struct {
	Result model.VerificationResult
}

type RateLimited struct {
	RetryAfter time.Duration
}

type Failed struct {
	Message string
}

func (Verified) outcome()    {}
func (RateLimited) outcome() {}
func (Failed) outcome()      {}

type Verifier interface {
	Verify(ctx context.Context, req Request) Outcome
}

// HTTPVerifier talks to the external AI verification endpoint.
type HTTPVerifier struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPVerifier(url, apiKey string, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPVerifier{url: url, apiKey: apiKey, client: client}
}

// New returns the HTTP verifier, or the mock when no endpoint is configured.
func New(cfg *config.Config) Verifier {
	if strings.TrimSpace(cfg.AIVerifyURL) == "" {
		logger.Warn("AI_VERIFY_URL not set, using mock verifier")
		return MockVerifier{}
	}
	return NewHTTPVerifier(cfg.AIVerifyURL, cfg.AIVerifyAPIKey, nil)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, req Request) Outcome {
	payload, err := json.Marshal(req)
	if err != nil {
		return Failed{Message: fmt.Sprintf("encode verification request: %v", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return Failed{Message: fmt.Sprintf("build verification request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return Failed{Message: fmt.Sprintf("verification service unreachable: %v", err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Failed{Message: fmt.Sprintf("read verification response: %v", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimited{RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result model.VerificationResult
		if err := json.Unmarshal(body, &result); err != nil {
			return Failed{Message: fmt.Sprintf("decode verification response: %v", err)}
		}
		return Verified{Result: result}
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		if eb.Error != "" {
			return Failed{Message: eb.Error}
		}
		if eb.Message != "" {
			return Failed{Message: eb.Message}
		}
	}
	return Failed{Message: fmt.Sprintf("verification service returned %s", resp.Status)}
}

// ParseRetryAfter reads a delay-seconds Retry-After value; anything else yields zero.
func ParseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	if secs > maxRetryAfterSecs {
		secs = maxRetryAfterSecs
	}
	return time.Duration(secs) * time.Second
}

// Retry-After values past a day are treated as a day.
const maxRetryAfterSecs = 24 * 60 * 60

// MockVerifier accepts every proof at face value.
type MockVerifier struct{}

func (MockVerifier) Verify(ctx context.Context, req Request) Outcome {
	if err := ctx.Err(); err != nil {
		return Failed{Message: err.Error()}
	}
	steps := req.ClaimedSteps
	diff := 0
	tol := req.Tolerance
	notes := "mock verification"
	date := req.ForDate
	return Verified{Result: model.VerificationResult{
		Verified:       true,
		ExtractedSteps: &steps,
		ExtractedDate:  &date,
		Difference:     &diff,
		ToleranceUsed:  &tol,
		Notes:          &notes,
	}}
}
