package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/ashureev/talent-manual/internal/identity"
	"github.com/coder/websocket"
)

// StateFunc returns the current snapshot of a client tab.
type StateFunc func(clientID, sessionID string) any

// Handler upgrades a request to a progress stream. It sends the current
// snapshot first, then every published change newer than what the tab has
// already seen.
type Handler struct {
	hub            *Hub
	state          StateFunc
	allowedOrigins []string
	isDev          bool
	logger         *slog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(hub *Hub, state StateFunc, allowedOrigins []string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:            hub,
		state:          state,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		logger:         logger,
	}
}

type inbound struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := identity.ClientIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	h.logger.Info("Progress stream request", "client_id", clientID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "client_id", clientID)
		return
	}

	sub := h.hub.Register(clientID, sessionID)
	defer h.hub.Unregister(clientID, sessionID, sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	initial := h.state(clientID, sessionID)
	if err := h.writeJSON(ctx, ws, Message{Type: "snapshot", Data: initial}); err != nil {
		h.logger.Debug("Failed to send initial snapshot", "error", err, "client_id", clientID)
		_ = ws.Close(websocket.StatusInternalError, "initial snapshot failed")
		return
	}

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, sub, clientID)
	}()

	seen := versionOf(initial)
	for {
		select {
		case f := <-sub.Out():
			if f.Version != 0 {
				if f.Version <= seen {
					continue
				}
				seen = f.Version
			}
			if err := ws.Write(ctx, websocket.MessageText, f.Data); err != nil {
				h.logger.Debug("WebSocket write error", "error", err, "client_id", clientID)
				return
			}
		case <-sub.Done():
			_ = ws.Close(websocket.StatusNormalClosure, "session closed")
			return
		case <-ctx.Done():
			_ = ws.Close(websocket.StatusNormalClosure, "session ended")
			return
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sub *Subscriber, clientID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "client_id", clientID)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "client_id", clientID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			data, _ := json.Marshal(Message{Type: "pong"})
			sub.send(Frame{Data: data})
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
