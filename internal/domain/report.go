package domain

import (
	"time"
)

// Career is one recommended career with the reason it fits.
type Career struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Report is the canonical, presentation-ready assessment result. Absent
// fields are zero values and must be treated as empty.
type Report struct {
	CoreTraits      []string `json:"core_traits"`
	DeepAnalysis    string   `json:"deep_analysis"`
	NotSuitable     string   `json:"not_suitable"`
	ActionGuide     string   `json:"action_guide"`
	Careers         []Career `json:"careers"`
	FullChatHistory []Turn   `json:"full_chat_history,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.CoreTraits = append(make([]string, 0, len(r.CoreTraits)), r.CoreTraits...)
	out.Careers = append(make([]Career, 0, len(r.Careers)), r.Careers...)
	if r.FullChatHistory != nil {
		out.FullChatHistory = CloneTurns(r.FullChatHistory)
	}
	return &out
}

// ReportRecord is an archived report outcome.
type ReportRecord struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	SessionID string    `json:"session_id"`
	Mode      Mode      `json:"mode"`
	Fallback  bool      `json:"fallback"`
	Report    Report    `json:"report"`
	CreatedAt time.Time `json:"created_at"`
}
