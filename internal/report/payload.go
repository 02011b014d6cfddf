// Package report turns untrusted report payloads into the canonical report
// shape and holds the fixed reports used when no payload is usable.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPayload is returned when a report body carries nothing usable.
var ErrEmptyPayload = errors.New("empty report payload")

// Payload is a raw report as delivered by the backend. Keys follow either the
// legacy scheme (keywords, analysis, shadow_transformation) or the canonical
// one; values are kept undecoded until Normalize looks at them.
type Payload map[string]json.RawMessage

// Decode parses a report body. A surrounding markdown code fence is removed
// first. Empty bodies, null, {} and non-object JSON yield ErrEmptyPayload.
func Decode(body []byte) (Payload, error) {
	text := stripFence(string(body))
	if text == "" {
		return nil, ErrEmptyPayload
	}

	var probe any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, fmt.Errorf("decode report payload: %w", err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, ErrEmptyPayload
	}

	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("decode report payload: %w", err)
	}
	if len(p) == 0 {
		return nil, ErrEmptyPayload
	}
	return p, nil
}

func stripFence(s string) string {
	if _, after, ok := strings.Cut(s, "```json"); ok {
		s = after
		if before, _, ok := strings.Cut(s, "```"); ok {
			s = before
		}
	} else if _, after, ok := strings.Cut(s, "```"); ok {
		s = after
		if before, _, ok := strings.Cut(s, "```"); ok {
			s = before
		}
	}
	return strings.TrimSpace(s)
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// payloadOf builds a Payload from plain Go values. It is used for the fixed
// reports, whose values always marshal.
func payloadOf(fields map[string]any) Payload {
	p := make(Payload, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			panic("report: marshal fixed payload field " + k + ": " + err.Error())
		}
		p[k] = raw
	}
	return p
}
