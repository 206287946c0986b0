package llm

import (
	"strings"

	"github.com/goccy/go-json"
)

// ExtractJSON pulls a JSON object out of free-form model output.
//
// Code fences are removed first, then the span from the first '{' to the
// last '}' is tried. When that fails the text is scanned for balanced
// top-level objects (string and escape aware) and the last one that parses
// wins. ok is false when no object can be recovered.
func ExtractJSON(raw string) (map[string]any, bool) {
	s := stripFences(raw)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		if obj, ok := parseObject(s[start : end+1]); ok {
			return obj, true
		}
	}

	return scanObjects(s)
}

func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// scanObjects walks s tracking brace depth. Braces inside JSON strings do not
// count. Each time depth returns to zero the closed span is parsed; spans that
// fail are dropped and scanning continues after them.
func scanObjects(s string) (map[string]any, bool) {
	var (
		last     map[string]any
		found    bool
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if obj, ok := parseObject(s[start : i+1]); ok {
					last, found = obj, true
				}
				start = -1
			}
		}
	}

	return last, found
}

func parseObject(span string) (obj map[string]any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			obj, ok = nil, false
		}
	}()

	var m map[string]any
	if err := json.Unmarshal([]byte(span), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
