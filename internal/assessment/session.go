// Package assessment drives one user's multi-round question/answer exchange
// with the assessment backend and detects when it is finished.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/talent-manual/internal/backend"
	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/report"
)

// MinAnswerLength is the minimum number of characters an answer must have to
// be sent.
const MinAnswerLength = 2

var (
	// ErrAnswerTooShort rejects answers below MinAnswerLength.
	ErrAnswerTooShort = errors.New("answer too short")
	// ErrSubmitInFlight rejects a submit while another one is pending.
	ErrSubmitInFlight = errors.New("a submission is already in flight")
	// ErrNotAwaitingInput rejects a submit outside the AwaitingInput state.
	ErrNotAwaitingInput = errors.New("session is not awaiting input")
	// ErrAlreadyStarted rejects a second Start.
	ErrAlreadyStarted = errors.New("session already started")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusAwaitingInput Status = "awaiting_input"
	StatusSubmitting    Status = "submitting"
	StatusFinished      Status = "finished"
	StatusFailed        Status = "failed"
)

// EventKind classifies the outcome of a submit.
type EventKind string

const (
	EventNextQuestion EventKind = "next_question"
	EventCompleted    EventKind = "completed"
	EventError        EventKind = "error"
)

// Event is the outcome of one round.
type Event struct {
	Kind EventKind
	// Prompt is the next question (EventNextQuestion).
	Prompt string
	// History is the backend's final history, verbatim (EventCompleted).
	History []domain.Turn
	// Err describes a failed round (EventError).
	Err error
}

// StartResult is what the user sees once a session has been opened.
type StartResult struct {
	Prompt     string
	Transcript []domain.Turn
	// Degraded is set when the backend could not be reached; Prompt then
	// holds a retry message and the session accepts no answers.
	Degraded bool
}

// ProgressFunc receives advisory progress percentages.
type ProgressFunc func(percent int)

// Option configures a Session.
type Option func(*Session)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}

// WithTimeout bounds every backend call. A call exceeding it fails like any
// other backend error.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session is one assessment conversation. It is safe for concurrent use;
// rounds are serialized and a concurrent Submit is rejected.
type Session struct {
	client   backend.Assessor
	progress ProgressFunc
	timeout  time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	starting   bool
	status     Status
	mode       domain.Mode
	transcript []domain.Turn
	prompt     string
	round      int
}

// New creates a session in the Initializing state.
func New(client backend.Assessor, opts ...Option) *Session {
	s := &Session{
		client: client,
		logger: slog.Default(),
		status: StatusInitializing,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start issues the opening request. Backend failures do not produce an
// error: the session becomes Failed and exposes a retry prompt.
func (s *Session) Start(ctx context.Context, mode domain.Mode) (StartResult, error) {
	s.mu.Lock()
	if s.status != StatusInitializing || s.starting {
		s.mu.Unlock()
		return StartResult{}, ErrAlreadyStarted
	}
	s.starting = true
	s.mode = mode
	s.mu.Unlock()

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	resp, err := s.client.Start(ctx, mode)

	s.mu.Lock()
	if err != nil {
		s.status = StatusFailed
		s.prompt = report.StartFailurePrompt
		s.transcript = []domain.Turn{}
		s.mu.Unlock()

		s.logger.Warn("Failed to start assessment", "mode", mode, "error", err)
		s.report(Progress(0))
		return StartResult{Prompt: report.StartFailurePrompt, Transcript: []domain.Turn{}, Degraded: true}, nil
	}

	s.status = StatusAwaitingInput
	s.prompt = resp.Message
	s.transcript = domain.CloneTurns(resp.History)
	result := StartResult{Prompt: s.prompt, Transcript: domain.CloneTurns(s.transcript)}
	s.mu.Unlock()

	s.logger.Info("Assessment started", "mode", mode, "history_len", len(result.Transcript))
	s.report(Progress(0))
	return result, nil
}

// Submit sends one answer. Caller contract violations return an error and
// leave the session untouched; backend failures come back as an EventError
// with the session ready for another attempt.
func (s *Session) Submit(ctx context.Context, answer string) (Event, error) {
	if utf8.RuneCountInString(answer) < MinAnswerLength {
		return Event{}, ErrAnswerTooShort
	}

	s.mu.Lock()
	switch s.status {
	case StatusAwaitingInput:
	case StatusSubmitting:
		s.mu.Unlock()
		return Event{}, ErrSubmitInFlight
	default:
		status := s.status
		s.mu.Unlock()
		return Event{}, fmt.Errorf("%w (status %s)", ErrNotAwaitingInput, status)
	}
	s.status = StatusSubmitting
	req := backend.ChatRequest{UserMessage: answer, History: domain.CloneTurns(s.transcript)}
	round := s.round
	s.mu.Unlock()

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	resp, err := s.client.Chat(ctx, req)

	s.mu.Lock()
	if err != nil {
		s.status = StatusAwaitingInput
		s.mu.Unlock()
		s.logger.Warn("Assessment round failed", "round", round, "error", err)
		return Event{Kind: EventError, Err: err}, nil
	}

	if resp.IsFinished {
		s.status = StatusFinished
		history := domain.CloneTurns(resp.History)
		s.mu.Unlock()

		s.logger.Info("Assessment finished", "rounds", round, "history_len", len(history))
		s.report(ProgressCompleted)
		return Event{Kind: EventCompleted, History: history}, nil
	}

	s.transcript = domain.CloneTurns(resp.History)
	s.prompt = resp.Message
	s.round++
	s.status = StatusAwaitingInput
	next := s.round
	prompt := s.prompt
	s.mu.Unlock()

	s.logger.Debug("Assessment round completed", "round", next)
	s.report(Progress(next))
	return Event{Kind: EventNextQuestion, Prompt: prompt}, nil
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Round returns the number of completed non-final rounds.
func (s *Session) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Prompt returns the question currently shown to the user.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// Mode returns the mode the session was started with.
func (s *Session) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Transcript returns a copy of the history so far.
func (s *Session) Transcript() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneTurns(s.transcript)
}

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) report(percent int) {
	if s.progress != nil {
		s.progress(percent)
	}
}
