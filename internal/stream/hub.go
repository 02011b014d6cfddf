// Package stream pushes controller state changes to browser tabs over
// websockets.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Message is the envelope of every frame sent to a tab.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Versioned is implemented by snapshots that carry an ordering version.
type Versioned interface {
	SnapshotVersion() uint64
}

func versionOf(v any) uint64 {
	if vv, ok := v.(Versioned); ok {
		return vv.SnapshotVersion()
	}
	return 0
}

// Frame is an encoded message queued for a tab. Version is zero for frames
// that are not snapshots.
type Frame struct {
	Version uint64
	Data    []byte
}

// Subscriber is one connected tab.
type Subscriber struct {
	out  chan Frame
	done chan struct{}
	once sync.Once
}

func newSubscriber() *Subscriber {
	return &Subscriber{
		out:  make(chan Frame, subscriberBuffer),
		done: make(chan struct{}),
	}
}

// Out yields encoded frames in order.
func (s *Subscriber) Out() <-chan Frame { return s.out }

// Done is closed when the hub drops the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// send queues data, discarding the oldest frame when the tab falls behind.
// Frames carry full snapshots, so only the latest matters.
func (s *Subscriber) send(f Frame) {
	for {
		select {
		case s.out <- f:
			return
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}

// Hub tracks one subscriber per client tab.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*Subscriber
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active: make(map[string]map[string]*Subscriber),
		logger: logger,
	}
}

// Register adds a subscriber for a client tab, replacing any previous one.
func (h *Hub) Register(clientID, sessionID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[clientID]; !exists {
		h.active[clientID] = make(map[string]*Subscriber)
	}
	if existing, exists := h.active[clientID][sessionID]; exists {
		existing.close()
	}

	sub := newSubscriber()
	h.active[clientID][sessionID] = sub
	h.logger.Info("Progress stream registered", "client_id", clientID, "session_id", sessionID)
	return sub
}

// Unregister removes sub if it is still the current subscriber of the tab.
func (h *Hub) Unregister(clientID, sessionID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[clientID]
	if !ok {
		return
	}
	if current, exists := sessions[sessionID]; exists && current == sub {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.active, clientID)
		}
		sub.close()
		h.logger.Info("Progress stream unregistered", "client_id", clientID, "session_id", sessionID)
	}
}

// Active returns the current subscriber of a tab, or nil.
func (h *Hub) Active(clientID, sessionID string) *Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessions, ok := h.active[clientID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Publish sends a snapshot frame to a tab if it is connected.
func (h *Hub) Publish(clientID, sessionID string, snapshot any) {
	sub := h.Active(clientID, sessionID)
	if sub == nil {
		return
	}
	data, err := json.Marshal(Message{Type: "snapshot", Data: snapshot})
	if err != nil {
		h.logger.Error("Failed to encode snapshot", "client_id", clientID, "error", err)
		return
	}
	sub.send(Frame{Version: versionOf(snapshot), Data: data})
}

// CloseClient drops the subscriber of a tab; its connection is closed.
func (h *Hub) CloseClient(clientID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[clientID]
	if !ok {
		return
	}
	if sub, exists := sessions[sessionID]; exists {
		sub.close()
		delete(sessions, sessionID)
		h.logger.Info("Progress stream closed", "client_id", clientID, "session_id", sessionID)
	}
	if len(sessions) == 0 {
		delete(h.active, clientID)
	}
}
