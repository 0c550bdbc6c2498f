package llm

import (
	"errors"
	"strings"
)

// ErrNoJSONObject is returned when a reply carries no JSON object.
var ErrNoJSONObject = errors.New("no JSON object in model output")

// StripFences removes a surrounding markdown code fence. The opening fence
// line (with any language tag) and a closing ``` line are dropped.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ExtractJSON returns the outermost JSON object in s, ignoring fences and
// any prose around it.
func ExtractJSON(s string) ([]byte, error) {
	s = StripFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSONObject
	}
	return []byte(s[start : end+1]), nil
}
