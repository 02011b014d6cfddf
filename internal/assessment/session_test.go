package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/talent-manual/internal/backend"
	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/report"
	"github.com/google/go-cmp/cmp"
)

// scriptedBackend replays canned chat replies in order.
type scriptedBackend struct {
	mu       sync.Mutex
	startErr error
	start    *backend.StartResponse
	replies  []*backend.ChatResponse
	errs     []error
	requests []backend.ChatRequest
	block    chan struct{}
	entered  chan struct{}
}

func (b *scriptedBackend) Start(_ context.Context, _ domain.Mode) (*backend.StartResponse, error) {
	if b.startErr != nil {
		return nil, b.startErr
	}
	return b.start, nil
}

func (b *scriptedBackend) Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	i := len(b.requests)
	b.requests = append(b.requests, req)
	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if i >= len(b.replies) {
		return nil, errors.New("script exhausted")
	}
	return b.replies[i], nil
}

func (b *scriptedBackend) Report(context.Context, []domain.Turn) (report.Payload, error) {
	return nil, errors.New("not used")
}

func (b *scriptedBackend) RandomReport(context.Context) (report.Payload, error) {
	return nil, errors.New("not used")
}

func (b *scriptedBackend) chatCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func turns(contents ...string) []domain.Turn {
	out := make([]domain.Turn, 0, len(contents))
	for i, c := range contents {
		role := domain.RoleAssistant
		if i%2 == 1 {
			role = domain.RoleUser
		}
		out = append(out, domain.Turn{Role: role, Content: c})
	}
	return out
}

func startedSession(t *testing.T, b *scriptedBackend, opts ...Option) *Session {
	t.Helper()
	if b.start == nil {
		b.start = &backend.StartResponse{Message: "q0", History: turns("q0")}
	}
	s := New(b, opts...)
	res, err := s.Start(context.Background(), domain.ModeNormal)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Degraded {
		t.Fatal("unexpected degraded start")
	}
	return s
}

func TestStartSuccess(t *testing.T) {
	t.Parallel()

	var progress []int
	b := &scriptedBackend{start: &backend.StartResponse{Message: "first?", History: turns("first?")}}
	s := New(b, WithProgress(func(p int) { progress = append(progress, p) }))

	res, err := s.Start(context.Background(), domain.ModeNormal)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if res.Prompt != "first?" || res.Degraded {
		t.Fatalf("unexpected result %+v", res)
	}
	if diff := cmp.Diff(turns("first?"), s.Transcript()); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if s.Status() != StatusAwaitingInput {
		t.Fatalf("expected awaiting_input, got %s", s.Status())
	}
	if diff := cmp.Diff([]int{10}, progress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Start(context.Background(), domain.ModeNormal); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStartFailureIsDegraded(t *testing.T) {
	t.Parallel()

	s := New(&scriptedBackend{startErr: errors.New("connection refused")})
	res, err := s.Start(context.Background(), domain.ModeNormal)
	if err != nil {
		t.Fatalf("Start must not fail on backend errors: %v", err)
	}
	if !res.Degraded || res.Prompt != report.StartFailurePrompt {
		t.Fatalf("unexpected result %+v", res)
	}
	if s.Status() != StatusFailed || s.Prompt() != report.StartFailurePrompt {
		t.Fatalf("expected failed status with retry prompt, got %s %q", s.Status(), s.Prompt())
	}

	_, err = s.Submit(context.Background(), "an answer")
	if !errors.Is(err, ErrNotAwaitingInput) {
		t.Fatalf("expected ErrNotAwaitingInput, got %v", err)
	}
}

func TestSubmitShortAnswerLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	b := &scriptedBackend{}
	s := startedSession(t, b)
	before := s.Transcript()

	for _, answer := range []string{"", "a", "好"} {
		if _, err := s.Submit(context.Background(), answer); !errors.Is(err, ErrAnswerTooShort) {
			t.Fatalf("answer %q: expected ErrAnswerTooShort, got %v", answer, err)
		}
	}

	if b.chatCalls() != 0 {
		t.Fatalf("expected no backend calls, got %d", b.chatCalls())
	}
	if s.Status() != StatusAwaitingInput || s.Round() != 0 || s.Prompt() != "q0" {
		t.Fatalf("state changed: %s round=%d prompt=%q", s.Status(), s.Round(), s.Prompt())
	}
	if diff := cmp.Diff(before, s.Transcript()); diff != "" {
		t.Fatalf("transcript changed (-want +got):\n%s", diff)
	}
}

func TestSubmitTwoCharacterAnswerIsSent(t *testing.T) {
	t.Parallel()

	b := &scriptedBackend{replies: []*backend.ChatResponse{{Message: "q1", History: turns("q0", "好的", "q1")}}}
	s := startedSession(t, b)

	ev, err := s.Submit(context.Background(), "好的")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if ev.Kind != EventNextQuestion || ev.Prompt != "q1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRoundsUntilCompletion(t *testing.T) {
	t.Parallel()

	const k = 4
	var replies []*backend.ChatResponse
	history := turns("q0")
	for i := 1; i <= k; i++ {
		history = append(domain.CloneTurns(history),
			domain.Turn{Role: domain.RoleUser, Content: fmt.Sprintf("answer %d", i)},
			domain.Turn{Role: domain.RoleAssistant, Content: fmt.Sprintf("q%d", i)},
		)
		replies = append(replies, &backend.ChatResponse{Message: fmt.Sprintf("q%d", i), History: history})
	}
	final := append(domain.CloneTurns(history),
		domain.Turn{Role: domain.RoleUser, Content: "last answer"},
		domain.Turn{Role: domain.RoleAssistant, Content: "done 【DONE】"},
	)
	replies = append(replies, &backend.ChatResponse{IsFinished: true, History: final})

	var progress []int
	b := &scriptedBackend{replies: replies}
	s := startedSession(t, b, WithProgress(func(p int) { progress = append(progress, p) }))

	for i := 1; i <= k; i++ {
		ev, err := s.Submit(context.Background(), fmt.Sprintf("answer %d", i))
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if ev.Kind != EventNextQuestion || ev.Prompt != fmt.Sprintf("q%d", i) {
			t.Fatalf("round %d: unexpected event %+v", i, ev)
		}
		if s.Round() != i {
			t.Fatalf("round %d: counter = %d", i, s.Round())
		}
	}

	if s.Round() != k {
		t.Fatalf("expected round %d before completion, got %d", k, s.Round())
	}

	ev, err := s.Submit(context.Background(), "last answer")
	if err != nil {
		t.Fatalf("final submit: %v", err)
	}
	if ev.Kind != EventCompleted {
		t.Fatalf("expected completion, got %+v", ev)
	}
	if diff := cmp.Diff(final, ev.History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	if s.Round() != k || s.Prompt() != fmt.Sprintf("q%d", k) {
		t.Fatalf("completion must not advance round/prompt: round=%d prompt=%q", s.Round(), s.Prompt())
	}
	if s.Status() != StatusFinished {
		t.Fatalf("expected finished, got %s", s.Status())
	}

	// Each request carries the history returned by the previous round.
	for i := 1; i < len(b.requests); i++ {
		if diff := cmp.Diff(replies[i-1].History, b.requests[i].History); diff != "" {
			t.Fatalf("request %d history mismatch (-want +got):\n%s", i, diff)
		}
	}

	if diff := cmp.Diff([]int{10, 20, 30, 40, 50, 95}, progress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Submit(context.Background(), "after finish"); !errors.Is(err, ErrNotAwaitingInput) {
		t.Fatalf("expected ErrNotAwaitingInput after finish, got %v", err)
	}
}

func TestSubmitFailureRevertsToAwaitingInput(t *testing.T) {
	t.Parallel()

	b := &scriptedBackend{
		errs:    []error{errors.New("boom")},
		replies: []*backend.ChatResponse{nil, {Message: "q1", History: turns("q0", "retry", "q1")}},
	}
	s := startedSession(t, b)

	ev, err := s.Submit(context.Background(), "first try")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if ev.Kind != EventError || ev.Err == nil {
		t.Fatalf("expected error event, got %+v", ev)
	}
	if s.Status() != StatusAwaitingInput || s.Round() != 0 || s.Prompt() != "q0" {
		t.Fatalf("unexpected state after failure: %s round=%d prompt=%q", s.Status(), s.Round(), s.Prompt())
	}
	if diff := cmp.Diff(turns("q0"), s.Transcript()); diff != "" {
		t.Fatalf("transcript changed (-want +got):\n%s", diff)
	}

	ev, err = s.Submit(context.Background(), "retry")
	if err != nil || ev.Kind != EventNextQuestion {
		t.Fatalf("retry failed: %+v %v", ev, err)
	}
}

func TestSubmitTimeout(t *testing.T) {
	t.Parallel()

	b := &scriptedBackend{block: make(chan struct{})}
	s := startedSession(t, b, WithTimeout(20*time.Millisecond))

	ev, err := s.Submit(context.Background(), "slow answer")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if ev.Kind != EventError || !errors.Is(ev.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error event, got %+v", ev)
	}
	if s.Status() != StatusAwaitingInput {
		t.Fatalf("expected awaiting_input, got %s", s.Status())
	}
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	t.Parallel()

	b := &scriptedBackend{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
		replies: []*backend.ChatResponse{{Message: "q1", History: turns("q0", "first", "q1")}},
	}
	s := startedSession(t, b)

	done := make(chan Event, 1)
	go func() {
		ev, _ := s.Submit(context.Background(), "first")
		done <- ev
	}()

	<-b.entered
	if s.Status() != StatusSubmitting {
		t.Fatalf("expected submitting, got %s", s.Status())
	}
	if _, err := s.Submit(context.Background(), "second"); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}

	close(b.block)
	ev := <-done
	if ev.Kind != EventNextQuestion {
		t.Fatalf("unexpected event %+v", ev)
	}
	if b.chatCalls() != 1 {
		t.Fatalf("expected exactly one backend call, got %d", b.chatCalls())
	}
}

func TestProgress(t *testing.T) {
	t.Parallel()

	tests := map[int]int{-1: 10, 0: 10, 1: 20, 5: 60, 8: 90, 9: 90, 40: 90}
	for round, want := range tests {
		if got := Progress(round); got != want {
			t.Errorf("Progress(%d) = %d, want %d", round, got, want)
		}
	}
}
