package report

import (
	"testing"

	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func TestTestFixture(t *testing.T) {
	t.Parallel()

	got := TestFixture()
	if diff := cmp.Diff([]string{"直觉敏锐", "共情者", "战略家"}, got.CoreTraits); diff != "" {
		t.Fatalf("core_traits mismatch (-want +got):\n%s", diff)
	}
	if got.DeepAnalysis == "" || got.NotSuitable == "" || got.ActionGuide == "" {
		t.Fatalf("expected populated prose fields, got %+v", got)
	}
	if got.Careers == nil || len(got.Careers) != 0 {
		t.Fatalf("expected empty careers, got %v", got.Careers)
	}
}

func TestFallbacks(t *testing.T) {
	t.Parallel()

	quick := QuickFallback()
	if diff := cmp.Diff([]string{"错误", "重试", "连接"}, quick.CoreTraits); diff != "" {
		t.Fatalf("quick traits mismatch (-want +got):\n%s", diff)
	}
	if quick.Careers == nil || len(quick.Careers) != 0 {
		t.Fatalf("expected empty careers, got %v", quick.Careers)
	}
	if quick.DeepAnalysis == "" || quick.NotSuitable == "" {
		t.Fatal("expected explanatory text in quick fallback")
	}

	history := []domain.Turn{
		{Role: domain.RoleAssistant, Content: "q1"},
		{Role: domain.RoleUser, Content: "a1"},
	}
	gen := GenerationFallback(history)
	if diff := cmp.Diff(history, gen.FullChatHistory); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	history[0].Content = "mutated"
	if gen.FullChatHistory[0].Content != "q1" {
		t.Fatal("fallback history must not alias the caller's slice")
	}

	// Fallbacks are independent values.
	quick.CoreTraits[0] = "changed"
	if QuickFallback().CoreTraits[0] != "错误" {
		t.Fatal("QuickFallback returned shared state")
	}
}
