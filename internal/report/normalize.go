package report

import (
	"encoding/json"
	"strings"

	"github.com/ashureev/talent-manual/internal/domain"
)

// Field names of both payload schemes.
const (
	keyCoreTraits   = "core_traits"
	keyDeepAnalysis = "deep_analysis"
	keyNotSuitable  = "not_suitable"
	keyActionGuide  = "action_guide"
	keyCareers      = "careers"
	keyHistory      = "full_chat_history"

	keyLegacyKeywords = "keywords"
	keyLegacyAnalysis = "analysis"
	keyLegacyShadow   = "shadow_transformation"
)

// Normalize resolves every canonical field independently, first present key
// wins. action_guide and careers have no legacy alias. It never fails:
// unresolvable fields come back empty.
func Normalize(raw Payload) domain.Report {
	return domain.Report{
		CoreTraits:      firstStrings(raw, keyCoreTraits, keyLegacyKeywords),
		DeepAnalysis:    firstText(raw, keyDeepAnalysis, keyLegacyAnalysis),
		NotSuitable:     firstText(raw, keyNotSuitable, keyLegacyShadow),
		ActionGuide:     firstText(raw, keyActionGuide),
		Careers:         careers(raw[keyCareers]),
		FullChatHistory: history(raw[keyHistory]),
	}
}

// UnescapeNewlines rewrites the two-character sequence `\n` into a line
// break. Upstream text sometimes arrives double-escaped.
func UnescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// firstText returns the first key holding a non-empty string.
func firstText(raw Payload, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || isNull(v) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil || s == "" {
			continue
		}
		return UnescapeNewlines(s)
	}
	return ""
}

// firstStrings returns the first key holding an array. Non-string elements
// are skipped.
func firstStrings(raw Payload, keys ...string) []string {
	for _, k := range keys {
		items, ok := array(raw[k])
		if !ok {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if isNull(item) {
				continue
			}
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				continue
			}
			out = append(out, UnescapeNewlines(s))
		}
		return out
	}
	return []string{}
}

func careers(v json.RawMessage) []domain.Career {
	out := []domain.Career{}
	items, ok := array(v)
	if !ok {
		return out
	}
	for _, item := range items {
		if isNull(item) {
			continue
		}
		var c domain.Career
		if err := json.Unmarshal(item, &c); err != nil {
			continue
		}
		c.Title = UnescapeNewlines(c.Title)
		c.Reason = UnescapeNewlines(c.Reason)
		out = append(out, c)
	}
	return out
}

func history(v json.RawMessage) []domain.Turn {
	items, ok := array(v)
	if !ok {
		return nil
	}
	out := make([]domain.Turn, 0, len(items))
	for _, item := range items {
		if isNull(item) {
			continue
		}
		var t domain.Turn
		if err := json.Unmarshal(item, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func array(v json.RawMessage) ([]json.RawMessage, bool) {
	if isNull(v) {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, false
	}
	return items, true
}
