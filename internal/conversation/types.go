// Package conversation sequences the user journey through landing,
// assessment, loading and report, and hosts one controller per client.
package conversation

import (
	"context"
	"errors"

	"github.com/ashureev/talent-manual/internal/assessment"
	"github.com/ashureev/talent-manual/internal/domain"
)

var (
	// ErrNotInAssessment rejects answers outside the assessment step.
	ErrNotInAssessment = errors.New("no assessment in progress")
	// ErrUnknownMode rejects an unsupported mode.
	ErrUnknownMode = errors.New("unknown mode")
)

// Step is the client-visible screen.
type Step string

const (
	StepLanding    Step = "landing"
	StepAssessment Step = "assessment"
	StepLoading    Step = "loading"
	StepReport     Step = "report"
)

// roundFailedNotice is shown after a round could not be delivered.
const roundFailedNotice = "回复发送失败，请稍后重试。"

// Snapshot is a copy of the controller state, safe to hand to presentation.
// Version grows with every snapshot a controller takes; a higher version
// always describes a later state.
type Snapshot struct {
	Version  uint64            `json:"version"`
	Step     Step              `json:"step"`
	Mode     domain.Mode       `json:"mode,omitempty"`
	Progress int               `json:"progress"`
	Round    int               `json:"round"`
	Prompt   string            `json:"prompt,omitempty"`
	Status   assessment.Status `json:"status,omitempty"`
	Degraded bool              `json:"degraded,omitempty"`
	Notice   string            `json:"notice,omitempty"`
	Report   *domain.Report    `json:"report,omitempty"`
	Fallback bool              `json:"fallback,omitempty"`
}

// SnapshotVersion reports the snapshot's position in its controller's history.
func (s Snapshot) SnapshotVersion() uint64 { return s.Version }

// Observer receives state changes in order. Publish must not call back into
// the controller methods that notify.
type Observer interface {
	Publish(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

// Publish calls f.
func (f ObserverFunc) Publish(s Snapshot) { f(s) }

// Archive stores produced reports.
type Archive interface {
	SaveReport(ctx context.Context, rec *domain.ReportRecord) error
}
