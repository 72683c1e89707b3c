package domain

import (
	"encoding/json"
	"strings"
)

// UnwrapContent extracts the text of a message envelope {"message": "..."}.
// The envelope may be string-encoded twice; anything that is not an envelope
// is returned verbatim.
func UnwrapContent(s string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	if inner, ok := v.(string); ok {
		var v2 interface{}
		if err := json.Unmarshal([]byte(inner), &v2); err != nil {
			return inner
		}
		if msg, ok := envelopeMessage(v2); ok {
			return msg
		}
		return inner
	}
	if msg, ok := envelopeMessage(v); ok {
		return msg
	}
	return s
}

// ContentText reads a raw JSON content field, which may be a string, an
// envelope object or null.
func ContentText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return trimmed
		}
		return UnwrapContent(s)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err == nil {
		if msg, ok := envelopeMessage(v); ok {
			return msg
		}
	}
	return trimmed
}

// DecodeImages reads an image field that may be a string, a list of strings
// or null.
func DecodeImages(raw json.RawMessage) []string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []interface{}
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil
	}
	out := make([]string, 0, len(many))
	for _, item := range many {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func envelopeMessage(v interface{}) (string, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return "", false
	}
	msg, ok := m["message"].(string)
	return msg, ok
}
