package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/talent-manual/internal/identity"
	"github.com/coder/websocket"
)

func TestHubRegisterReplacesPrevious(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)

	first := h.Register("c1", "tab-1")
	second := h.Register("c1", "tab-1")

	select {
	case <-first.Done():
	default:
		t.Error("replaced subscriber was not closed")
	}
	if h.Active("c1", "tab-1") != second {
		t.Error("Active() did not return the newest subscriber")
	}
}

func TestHubUnregisterStale(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)

	stale := h.Register("c1", "tab-1")
	current := h.Register("c1", "tab-1")
	other := h.Register("c1", "tab-2")

	h.Unregister("c1", "tab-1", stale)
	if h.Active("c1", "tab-1") != current {
		t.Error("stale unregister removed the current subscriber")
	}
	h.Unregister("c1", "tab-1", current)
	if h.Active("c1", "tab-1") != nil {
		t.Error("subscriber still active after unregister")
	}
	if h.Active("c1", "tab-2") != other {
		t.Error("another tab was affected")
	}
}

func TestHubPublishKeepsLatest(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)
	sub := h.Register("c1", "tab-1")

	for i := 0; i <= subscriberBuffer*2; i++ {
		h.Publish("c1", "tab-1", map[string]int{"progress": i})
	}

	var last []byte
	for len(sub.Out()) > 0 {
		last = (<-sub.Out()).Data
	}
	want := `{"type":"snapshot","data":{"progress":` + strconv.Itoa(subscriberBuffer*2) + `}}`
	if string(last) != want {
		t.Errorf("last frame = %s, want %s", last, want)
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			h.Register("c1", "tab-"+strconv.Itoa(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			h.Publish("c1", "tab-"+strconv.Itoa(i), i)
		}
	}()
	wg.Wait()
}

type versionedState struct {
	V    uint64 `json:"v"`
	Step string `json:"step"`
}

func (s versionedState) SnapshotVersion() uint64 { return s.V }

func TestHubPublishTagsVersion(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)
	sub := h.Register("c1", "tab-1")

	h.Publish("c1", "tab-1", versionedState{V: 7, Step: "report"})
	h.Publish("c1", "tab-1", map[string]int{"progress": 1})

	if f := <-sub.Out(); f.Version != 7 {
		t.Errorf("versioned frame Version = %d, want 7", f.Version)
	}
	if f := <-sub.Out(); f.Version != 0 {
		t.Errorf("plain frame Version = %d, want 0", f.Version)
	}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, h *Hub, state StateFunc) (*websocket.Conn, context.Context) {
	t.Helper()
	handler := NewHandler(h, state, []string{"*"}, true, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.WithIdentity(r.Context(), "c1", "tab-1")
		handler.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) frame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return f
}

func waitActive(t *testing.T, h *Hub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Active("c1", "tab-1") == nil {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerSendsCurrentSnapshotOnConnect(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)
	conn, ctx := dialStream(t, h, func(clientID, sessionID string) any {
		return map[string]string{"step": "assessment", "key": clientID + ":" + sessionID}
	})

	f := readFrame(t, ctx, conn)
	if f.Type != "snapshot" || string(f.Data) != `{"key":"c1:tab-1","step":"assessment"}` {
		t.Errorf("first frame = %s %s", f.Type, f.Data)
	}
}

func TestHandlerPingAndPublish(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)
	conn, ctx := dialStream(t, h, func(string, string) any { return map[string]int{"progress": 0} })
	readFrame(t, ctx, conn)

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if f := readFrame(t, ctx, conn); f.Type != "pong" {
		t.Errorf("reply type = %q, want pong", f.Type)
	}

	h.Publish("c1", "tab-1", map[string]int{"progress": 40})
	f := readFrame(t, ctx, conn)
	if f.Type != "snapshot" || string(f.Data) != `{"progress":40}` {
		t.Errorf("published frame = %s %s", f.Type, f.Data)
	}
}

func TestHandlerClosesOnCloseClient(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)
	conn, ctx := dialStream(t, h, func(string, string) any { return nil })
	readFrame(t, ctx, conn)
	waitActive(t, h)

	h.CloseClient("c1", "tab-1")

	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("Read() error = %v, want normal closure", err)
	}
}

func TestHandlerSkipsOlderSnapshots(t *testing.T) {
	t.Parallel()
	h := NewHub(nil)
	conn, ctx := dialStream(t, h, func(string, string) any { return versionedState{V: 5, Step: "loading"} })
	readFrame(t, ctx, conn)

	h.Publish("c1", "tab-1", versionedState{V: 3, Step: "report"})
	h.Publish("c1", "tab-1", versionedState{V: 5, Step: "report"})
	h.Publish("c1", "tab-1", versionedState{V: 6, Step: "landing"})

	f := readFrame(t, ctx, conn)
	if string(f.Data) != `{"v":6,"step":"landing"}` {
		t.Errorf("next frame = %s, want the v6 landing snapshot", f.Data)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if f := readFrame(t, ctx, conn); f.Type != "pong" {
		t.Errorf("reply type = %q, want pong", f.Type)
	}
}
