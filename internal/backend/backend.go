package backend

import (
	"context"

	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/report"
)

// Assessor is the assessment contract of the backend.
type Assessor interface {
	// Start opens a session and returns the first question.
	Start(ctx context.Context, mode domain.Mode) (*StartResponse, error)

	// Chat submits one answer.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Report generates a report from a finished conversation.
	Report(ctx context.Context, history []domain.Turn) (report.Payload, error)

	// RandomReport returns a pre-synthesized report without a conversation.
	RandomReport(ctx context.Context) (report.Payload, error)
}

// Debugger is the diagnostic side of the backend. It is not part of the
// assessment contract.
type Debugger interface {
	DebugStart(ctx context.Context) (*DebugReply, error)
	Health(ctx context.Context) (*HealthStatus, error)
	DebugChat(ctx context.Context, message string) (*DebugReply, error)
}

// Ensure Client implements both sides.
var (
	_ Assessor = (*Client)(nil)
	_ Debugger = (*Client)(nil)
)
