package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ashureev/talent-manual/internal/debugprobe"
)

func decodeEntries(t *testing.T, body []byte) []debugprobe.Entry {
	t.Helper()
	var resp struct {
		Entries []debugprobe.Entry `json:"entries"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	return resp.Entries
}

func TestDebugRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeBackend{}, nil, nil)

	entries := decodeEntries(t, s.do(t, http.MethodPost, "/api/debug/start", "").Body.Bytes())
	if last := entries[len(entries)-1]; last.Role != debugprobe.RoleAssistant || last.Content != "debug ready" {
		t.Errorf("start entry = %+v", last)
	}

	entries = decodeEntries(t, s.do(t, http.MethodGet, "/api/debug/health", "").Body.Bytes())
	if last := entries[len(entries)-1]; last.Role != debugprobe.RoleSuccess {
		t.Errorf("health entry = %+v", last)
	}

	entries = decodeEntries(t, s.do(t, http.MethodPost, "/api/debug/chat", `{"message":"hi"}`).Body.Bytes())
	if last := entries[len(entries)-1]; last.Content != "echo: hi" {
		t.Errorf("chat entry = %+v", last)
	}
	if len(entries) != 5 {
		t.Errorf("entries = %d, want 5 (ready, start, health, user, reply)", len(entries))
	}
}

func TestDebugDoesNotTouchAssessment(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeBackend{}, nil, nil)

	s.do(t, http.MethodPost, "/api/debug/chat", `{"message":"hi"}`)
	snap := decodeSnapshot(t, s.do(t, http.MethodGet, "/api/assessment/state", ""))
	if snap.Step != "landing" || snap.Progress != 0 {
		t.Errorf("snapshot = %+v, want untouched landing", snap)
	}
}
