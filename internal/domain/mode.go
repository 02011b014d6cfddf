package domain

import (
	"fmt"
	"strings"
)

// Mode selects how a report is produced.
type Mode string

const (
	// ModeNormal runs the full conversational assessment.
	ModeNormal Mode = "normal"
	// ModeQuick asks the backend for a pre-synthesized random report.
	ModeQuick Mode = "quick"
	// ModeTestReport yields a static fixture without any network call.
	ModeTestReport Mode = "test_report"
)

// ParseMode maps user input onto a Mode. An empty string means ModeNormal.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNormal:
		return ModeNormal, nil
	case ModeQuick:
		return ModeQuick, nil
	case ModeTestReport, "test":
		return ModeTestReport, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeNormal, ModeQuick, ModeTestReport:
		return true
	}
	return false
}
