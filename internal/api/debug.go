package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DebugHandler exposes the diagnostic probe of the calling tab.
type DebugHandler struct {
	sessions Sessions
}

// NewDebugHandler creates a debug handler.
func NewDebugHandler(sessions Sessions) *DebugHandler {
	return &DebugHandler{sessions: sessions}
}

// RegisterRoutes registers debug routes.
func (h *DebugHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/debug", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Get("/health", h.Health)
		r.Post("/chat", h.Chat)
	})
}

type debugChatRequest struct {
	Message string `json:"message"`
}

// Start opens a debug conversation with the backend.
func (h *DebugHandler) Start(w http.ResponseWriter, r *http.Request) {
	entries := h.sessions.Get(keyFromRequest(r)).Probe.Open(r.Context())
	JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Health checks the backend.
func (h *DebugHandler) Health(w http.ResponseWriter, r *http.Request) {
	entries := h.sessions.Get(keyFromRequest(r)).Probe.Ping(r.Context())
	JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Chat sends a free-form message to the backend.
func (h *DebugHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req debugChatRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	entries := h.sessions.Get(keyFromRequest(r)).Probe.Send(r.Context(), req.Message)
	JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
