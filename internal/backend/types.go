// Package backend is the client for the assessment backend, the external
// service that generates questions and reports.
package backend

import (
	"github.com/ashureev/talent-manual/internal/domain"
)

// StartRequest opens an assessment.
type StartRequest struct {
	Mode domain.Mode `json:"mode"`
}

// StartResponse carries the first question and the initial history.
type StartResponse struct {
	Message string        `json:"message"`
	History []domain.Turn `json:"history"`
}

// ChatRequest submits one answer together with the history so far. The
// report call reuses it with an empty UserMessage.
type ChatRequest struct {
	UserMessage string        `json:"user_message"`
	History     []domain.Turn `json:"history"`
}

// ChatResponse is the reply to one round.
type ChatResponse struct {
	IsFinished bool          `json:"is_finished"`
	Message    string        `json:"message,omitempty"`
	History    []domain.Turn `json:"history"`
}

// DebugChatRequest is a free-form diagnostic message.
type DebugChatRequest struct {
	Message string `json:"message"`
}

// DebugReply is the answer to a diagnostic call.
type DebugReply struct {
	Reply string `json:"reply"`
}

// HealthStatus is returned by the backend health endpoint.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}
