package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ashureev/talent-manual/internal/backend"
	"github.com/ashureev/talent-manual/internal/config"
	"github.com/ashureev/talent-manual/internal/conversation"
	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/report"
)

type stubBackend struct {
	rounds   int
	startErr error
}

func (s *stubBackend) Start(context.Context, domain.Mode) (*backend.StartResponse, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &backend.StartResponse{Message: "最近让你开心的事是什么？"}, nil
}

func (s *stubBackend) Chat(_ context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	history := append(domain.CloneTurns(req.History), domain.Turn{Role: domain.RoleUser, Content: req.UserMessage})
	if s.rounds == 0 {
		return &backend.ChatResponse{IsFinished: true, History: history}, nil
	}
	s.rounds--
	return &backend.ChatResponse{Message: "为什么？", History: history}, nil
}

func (s *stubBackend) Report(context.Context, []domain.Turn) (report.Payload, error) {
	return nil, errors.New("model overloaded")
}

func (s *stubBackend) RandomReport(context.Context) (report.Payload, error) {
	return report.Payload{"keywords": []byte(`["随机"]`), "analysis": []byte(`"随机分析"`)}, nil
}

func newStubController(b *stubBackend) *conversation.Controller {
	return conversation.New(b, conversation.WithPacing(0, 0))
}

func TestRunAssessmentNormal(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	in := strings.NewReader("嗯\n画画的时候\n因为专注\n")

	err := runAssessment(context.Background(), newStubController(&stubBackend{rounds: 1}), domain.ModeNormal, in, &out)
	if err != nil {
		t.Fatalf("runAssessment() error = %v\noutput:\n%s", err, out.String())
	}

	got := out.String()
	for _, want := range []string{
		"最近让你开心的事是什么？",
		"回答至少需要 2 个字。",
		"[20%] 为什么？",
		"生成失败",
		report.GenerationFallback(nil).DeepAnalysis,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunAssessmentQuick(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	err := runAssessment(context.Background(), newStubController(&stubBackend{}), domain.ModeQuick, strings.NewReader(""), &out)
	if err != nil {
		t.Fatalf("runAssessment() error = %v", err)
	}
	if !strings.Contains(out.String(), "随机分析") {
		t.Errorf("output missing quick report:\n%s", out.String())
	}
}

func TestRunAssessmentInputClosed(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	err := runAssessment(context.Background(), newStubController(&stubBackend{rounds: 3}), domain.ModeNormal, strings.NewReader("只有一句\n"), &out)
	if err == nil || !strings.Contains(err.Error(), "input closed") {
		t.Errorf("runAssessment() error = %v, want input closed", err)
	}
}

func TestRunAssessmentDegradedStart(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	err := runAssessment(context.Background(), newStubController(&stubBackend{startErr: errors.New("refused")}), domain.ModeNormal, strings.NewReader(""), &out)
	if err == nil {
		t.Fatal("runAssessment() error = nil, want backend unavailable")
	}
	if !strings.Contains(out.String(), report.StartFailurePrompt) {
		t.Errorf("output missing retry prompt:\n%s", out.String())
	}
}

func TestRootCommandFlags(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFrom(map[string]string{
		"BACKEND_URL":     "http://assess.internal:9000",
		"BACKEND_TIMEOUT": "15s",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	root := newRootCmd(cfg)
	for _, name := range []string{"backend", "timeout", "db", "verbose"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag --%s", name)
		}
	}
	if got := root.PersistentFlags().Lookup("backend").DefValue; got != "http://assess.internal:9000" {
		t.Errorf("--backend default = %q, want BACKEND_URL", got)
	}
	if got := root.PersistentFlags().Lookup("timeout").DefValue; got != "15s" {
		t.Errorf("--timeout default = %q, want BACKEND_TIMEOUT", got)
	}
	if _, _, err := root.Find([]string{"start"}); err != nil {
		t.Errorf("start subcommand: %v", err)
	}
}

type failingCloser struct{ err error }

func (f failingCloser) Close() error { return f.err }

func TestCloseLoggedReportsFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantLog bool
	}{
		{name: "clean close", err: nil, wantLog: false},
		{name: "close error", err: errors.New("database is locked"), wantLog: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			closeLogged(logger, "repository", failingCloser{err: tt.err})

			logged := strings.Contains(buf.String(), "Failed to close repository") &&
				strings.Contains(buf.String(), "database is locked")
			if logged != tt.wantLog {
				t.Errorf("logged = %v, want %v; output:\n%s", logged, tt.wantLog, buf.String())
			}
		})
	}
}
