package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/talent-manual/internal/assessment"
	"github.com/ashureev/talent-manual/internal/conversation"
	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/identity"
	"github.com/go-chi/chi/v5"
)

// Sessions resolves the per-tab state of a request.
type Sessions interface {
	Get(key conversation.Key) *conversation.Entry
}

// AssessmentHandler drives the conversation controller of the calling tab.
type AssessmentHandler struct {
	sessions Sessions
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewAssessmentHandler creates an assessment handler. A nil limiter disables
// rate limiting.
func NewAssessmentHandler(sessions Sessions, limiter *RateLimiter, logger *slog.Logger) *AssessmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessmentHandler{sessions: sessions, limiter: limiter, logger: logger}
}

// RegisterRoutes registers assessment routes.
func (h *AssessmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/assessment", func(r chi.Router) {
		r.Post("/begin", h.Begin)
		r.Post("/answer", h.Answer)
		r.Post("/restart", h.Restart)
		r.Get("/state", h.State)
	})
}

type beginRequest struct {
	Mode string `json:"mode"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// Begin starts a new journey in the requested mode.
func (h *AssessmentHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		Error(w, http.StatusBadRequest, "unknown_mode")
		return
	}

	key := keyFromRequest(r)
	h.logger.Info("Assessment begin", "client_key", key.String(), "mode", mode)

	snap, err := h.sessions.Get(key).Controller.Begin(r.Context(), mode)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// Answer submits one answer of the running assessment.
func (h *AssessmentHandler) Answer(w http.ResponseWriter, r *http.Request) {
	key := keyFromRequest(r)
	if h.limiter != nil && !h.limiter.Allow(key.ClientID) {
		h.logger.Warn("Answer rate limited", "client_key", key.String())
		Error(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request")
		return
	}

	snap, err := h.sessions.Get(key).Controller.Submit(r.Context(), req.Answer)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// Restart returns the tab to the landing step.
func (h *AssessmentHandler) Restart(w http.ResponseWriter, r *http.Request) {
	key := keyFromRequest(r)
	h.logger.Info("Assessment restart", "client_key", key.String())
	JSON(w, http.StatusOK, h.sessions.Get(key).Controller.Restart())
}

// State returns the current snapshot of the tab.
func (h *AssessmentHandler) State(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sessions.Get(keyFromRequest(r)).Controller.Snapshot())
}

func keyFromRequest(r *http.Request) conversation.Key {
	return conversation.Key{
		ClientID:  identity.ClientIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}
}

func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assessment.ErrAnswerTooShort):
		Error(w, http.StatusUnprocessableEntity, "answer_too_short")
	case errors.Is(err, assessment.ErrSubmitInFlight):
		Error(w, http.StatusConflict, "submission_in_flight")
	case errors.Is(err, assessment.ErrNotAwaitingInput), errors.Is(err, conversation.ErrNotInAssessment):
		Error(w, http.StatusConflict, "not_awaiting_input")
	case errors.Is(err, conversation.ErrUnknownMode):
		Error(w, http.StatusBadRequest, "unknown_mode")
	default:
		slog.Error("Unhandled controller error", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error")
	}
}
