// Package orchestrator drives one step submission through upload, save and AI
// verification, backing off on rate limits and asking the member before each wait.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stepleague/internal/client"
	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateUploading
	StateSaved
	StateVerificationPending
	StateVerified
	StateVerificationFailed
	StateSkipped
	StateQuotaExhausted
)

var stateNames = [...]string{
	StateIdle:                "Idle",
	StateSubmitting:          "Submitting",
	StateUploading:           "Uploading",
	StateSaved:               "Saved",
	StateVerificationPending: "VerificationPending",
	StateVerified:            "Verified",
	StateVerificationFailed:  "VerificationFailed",
	StateSkipped:             "Skipped",
	StateQuotaExhausted:      "QuotaExhausted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether verification has stopped for good.
func (s State) Terminal() bool { return s >= StateVerified }

const (
	MaxRetryAttempts   = 5
	BaseRetryDelay     = 5 * time.Second
	MaxRetryDelay      = 120 * time.Second
	InitialVerifyDelay = 3 * time.Second
	PollInterval       = time.Second
)

// Backoff is the wait after the attempts-th rate limit: 5s doubling up to 120s.
func Backoff(attempts int) time.Duration {
	return common.Backoff(attempts, BaseRetryDelay, MaxRetryDelay)
}

// Backend is the slice of the API the orchestrator needs; *client.Session implements it.
type Backend interface {
	SignUpload(ctx context.Context, contentType string, size int64) (*client.SignedUpload, error)
	PutObject(ctx context.Context, uploadURL, contentType string, body []byte) error
	CreateSubmission(ctx context.Context, in client.SubmissionInput) (*model.Submission, error)
	Verify(ctx context.Context, submissionID string) (*model.Submission, error)
}

type Input struct {
	LeagueID     string
	ForDate      model.Date
	Steps        int
	Proof        *Proof
	RequireProof bool
	Overwrite    bool
}

// Pending is the in-flight verification of a saved submission.
type Pending struct {
	SubmissionID string
	Steps        int
	ForDate      model.Date
	ProofPath    string
	RetryAt      time.Time
	Attempts     int
}

// Event is published on every state change. Confirm is set when the member has
// to answer with ConfirmWait or CancelWait.
type Event struct {
	State    State
	Attempts int
	Wait     time.Duration
	Message  string
	Confirm  bool
}

// Result describes a saved submission and how its verification ended.
type Result struct {
	State      State
	Submission *model.Submission
	Attempts   int
	Message    string
}

// ConflictError is returned when a submission for the date already exists.
// Resubmitting with Input.Overwrite replaces it.
type ConflictError struct {
	ForDate model.Date
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("you already submitted steps for %s; enable overwrite to replace them", e.ForDate)
}

func (e *ConflictError) Unwrap() error { return e.Err }

type Option func(*Orchestrator)

// WithEvents registers a listener called synchronously from the driving loop.
func WithEvents(fn func(Event)) Option {
	return func(o *Orchestrator) { o.onEvent = fn }
}

// WithCompletion registers a callback fired once per saved submission.
func WithCompletion(fn func(Result)) Option {
	return func(o *Orchestrator) { o.onComplete = fn }
}

// WithClock replaces time.Now and the context-aware sleep.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.now = now
		o.sleep = sleep
	}
}

type Orchestrator struct {
	backend    Backend
	onEvent    func(Event)
	onComplete func(Result)
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
	decisions  chan bool

	mu            sync.Mutex
	state         State
	pending       *Pending
	canOverwrite  bool
	uploads       map[[sha256.Size]byte]string
	completedOnce bool
}

func New(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		now:       time.Now,
		sleep:     sleepContext,
		decisions: make(chan bool, 1),
		uploads:   make(map[[sha256.Size]byte]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending returns a copy of the in-flight verification, if any.
func (o *Orchestrator) Pending() (Pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return Pending{}, false
	}
	return *o.pending, true
}

// CanOverwrite is true after a save was rejected as a duplicate.
func (o *Orchestrator) CanOverwrite() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canOverwrite
}

// ConfirmWait accepts the proposed backoff.
func (o *Orchestrator) ConfirmWait() { o.decide(true) }

// CancelWait abandons verification; the saved submission stays.
func (o *Orchestrator) CancelWait() { o.decide(false) }

func (o *Orchestrator) decide(wait bool) {
	select {
	case o.decisions <- wait:
	default:
	}
}

// Submit runs one submission to completion. Errors are returned only when nothing
// was saved: validation, upload, conflict and save failures. Once saved, the
// outcome of verification is reported in the Result.
func (o *Orchestrator) Submit(ctx context.Context, in Input) (*Result, error) {
	o.mu.Lock()
	if o.state != StateIdle && o.state != StateSaved && !o.state.Terminal() {
		o.mu.Unlock()
		return nil, fmt.Errorf("a submission is already in progress: %w", common.ErrConflict)
	}
	o.state = StateSubmitting
	o.completedOnce = false
	o.mu.Unlock()

	if err := validate(in); err != nil {
		o.setState(StateIdle, Event{Message: err.Error()})
		return nil, err
	}

	o.setState(StateSubmitting, Event{})
	var proofPath *string
	if in.Proof != nil {
		o.setState(StateUploading, Event{})
		path, err := o.upload(ctx, *in.Proof)
		if err != nil {
			o.setState(StateIdle, Event{Message: err.Error()})
			return nil, err
		}
		proofPath = &path
	}

	sub, err := o.backend.CreateSubmission(ctx, client.SubmissionInput{
		LeagueID:  in.LeagueID,
		ForDate:   in.ForDate,
		Steps:     in.Steps,
		ProofPath: proofPath,
		Overwrite: in.Overwrite,
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			cerr := &ConflictError{ForDate: in.ForDate, Err: err}
			o.mu.Lock()
			o.canOverwrite = true
			o.mu.Unlock()
			o.setState(StateIdle, Event{Message: cerr.Error()})
			return nil, cerr
		}
		o.setState(StateIdle, Event{Message: err.Error()})
		return nil, err
	}
	o.mu.Lock()
	o.canOverwrite = false
	o.mu.Unlock()
	o.setState(StateSaved, Event{Message: fmt.Sprintf("Saved %d steps for %s", sub.Steps, sub.ForDate)})

	if proofPath == nil {
		return o.finish(StateSaved, sub, 0, ""), nil
	}
	if sub.Verified != nil {
		return o.finish(StateVerified, sub, 0, verifiedMessage(sub)), nil
	}

	p := &Pending{
		SubmissionID: sub.ID,
		Steps:        sub.Steps,
		ForDate:      sub.ForDate,
		ProofPath:    *proofPath,
		RetryAt:      o.now().Add(InitialVerifyDelay),
	}
	o.mu.Lock()
	o.pending = p
	o.mu.Unlock()
	o.setState(StateVerificationPending, Event{Wait: InitialVerifyDelay})
	return o.verifyLoop(ctx, sub, p), nil
}

func (o *Orchestrator) verifyLoop(ctx context.Context, saved *model.Submission, p *Pending) *Result {
	for {
		if wait := p.RetryAt.Sub(o.now()); wait > 0 {
			if wait > PollInterval {
				wait = PollInterval
			}
			if err := o.sleep(ctx, wait); err != nil {
				return o.finish(StateSkipped, saved, p.Attempts, "Verification cancelled; your steps were saved.")
			}
			if o.cancelled() {
				return o.finish(StateSkipped, saved, p.Attempts, "Verification skipped; your steps were saved.")
			}
			continue
		}

		verified, err := o.backend.Verify(ctx, p.SubmissionID)
		switch {
		case err == nil:
			return o.finish(StateVerified, verified, p.Attempts, verifiedMessage(verified))

		case errors.Is(err, common.ErrRateLimited):
			if p.Attempts >= MaxRetryAttempts {
				return o.finish(StateQuotaExhausted, saved, p.Attempts,
					"Verification is busy right now. Your steps were saved and can be verified later.")
			}
			wait := Backoff(p.Attempts)
			if ra := client.RetryAfter(err); ra > wait {
				wait = ra
			}
			if wait > MaxRetryDelay {
				wait = MaxRetryDelay
			}
			o.reschedule(p, wait)
			o.drainDecisions()
			o.setState(StateVerificationPending, Event{
				Attempts: p.Attempts,
				Wait:     wait,
				Confirm:  true,
				Message:  fmt.Sprintf("High traffic: wait %ds to verify, or skip?", int(wait/time.Second)),
			})
			if !o.awaitDecision(ctx) {
				return o.finish(StateSkipped, saved, p.Attempts, "Verification skipped; your steps were saved.")
			}

		case ctx.Err() != nil:
			return o.finish(StateSkipped, saved, p.Attempts, "Verification cancelled; your steps were saved.")

		default:
			return o.finish(StateVerificationFailed, saved, p.Attempts, err.Error())
		}
	}
}

// reschedule updates the shared Pending under mu.
func (o *Orchestrator) reschedule(p *Pending, wait time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p.RetryAt = o.now().Add(wait)
	p.Attempts++
}

func (o *Orchestrator) awaitDecision(ctx context.Context) bool {
	select {
	case wait := <-o.decisions:
		return wait
	case <-ctx.Done():
		return false
	}
}

// cancelled consumes a pending decision; only CancelWait interrupts a running timer.
func (o *Orchestrator) cancelled() bool {
	select {
	case wait := <-o.decisions:
		return !wait
	default:
		return false
	}
}

func (o *Orchestrator) drainDecisions() {
	for {
		select {
		case <-o.decisions:
		default:
			return
		}
	}
}

func (o *Orchestrator) finish(state State, sub *model.Submission, attempts int, msg string) *Result {
	o.mu.Lock()
	o.pending = nil
	fire := !o.completedOnce
	o.completedOnce = true
	o.mu.Unlock()

	res := Result{State: state, Submission: sub, Attempts: attempts, Message: msg}
	o.setState(state, Event{Attempts: attempts, Message: msg})
	if fire && o.onComplete != nil {
		o.onComplete(res)
	}
	return &res
}

func (o *Orchestrator) setState(s State, ev Event) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.onEvent != nil {
		ev.State = s
		o.onEvent(ev)
	}
}

func (o *Orchestrator) upload(ctx context.Context, p Proof) (string, error) {
	key := sha256.Sum256(p.Data)
	o.mu.Lock()
	path, ok := o.uploads[key]
	o.mu.Unlock()
	if ok {
		return path, nil
	}

	prepared, err := PrepareProof(p)
	if err != nil {
		return "", err
	}
	signed, err := o.backend.SignUpload(ctx, prepared.ContentType, int64(len(prepared.Data)))
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	if err := o.backend.PutObject(ctx, signed.UploadURL, prepared.ContentType, prepared.Data); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	o.mu.Lock()
	o.uploads[key] = signed.Path
	o.mu.Unlock()
	return signed.Path, nil
}

func validate(in Input) error {
	var problems []string
	if strings.TrimSpace(in.LeagueID) == "" {
		problems = append(problems, "league is required")
	}
	if in.ForDate.IsZero() {
		problems = append(problems, "date is required")
	}
	if in.Steps < 0 {
		problems = append(problems, "steps cannot be negative")
	}
	if in.RequireProof && in.Proof == nil {
		problems = append(problems, "this league requires a photo of your step count")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), common.ErrValidation)
	}
	if in.Proof != nil {
		if _, err := checkProof(*in.Proof); err != nil {
			return err
		}
	}
	return nil
}

func verifiedMessage(sub *model.Submission) string {
	if sub.IsVerified() {
		return "Steps verified."
	}
	if sub.VerificationNotes != nil && *sub.VerificationNotes != "" {
		return "Steps could not be confirmed: " + *sub.VerificationNotes
	}
	return "Steps could not be confirmed from the photo."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
