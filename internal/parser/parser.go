// Package parser recovers a structured JSON object from free-form language
// model output. Models wrap objects in markdown fences, surround them with
// prose, or break lines inside string values; extraction is attempted from
// the most to the least specific location and never fails with an error, only
// with a failure marker the caller can test for.
package parser

import (
	"encoding/json"
	"strings"
)

// ErrorKey is the single key present in the failure marker returned when no
// strategy yields a parseable object.
const ErrorKey = "error"

const fence = "```"

// Extract returns the first JSON object found in text, trying in order: a
// fenced code block, the whole trimmed text, any brace-balanced span. On
// exhaustion it returns {"error": "..."} rather than nil or an error; callers
// treat the marker as "no usable intent".
func Extract(text string) map[string]any {
	text = strings.TrimSpace(text)

	for _, candidate := range candidates(text) {
		if obj, ok := tryParse(candidate); ok {
			return obj
		}
	}

	return map[string]any{ErrorKey: "failed to parse a JSON object from the response"}
}

// Failed reports whether obj is the parse-failure marker.
func Failed(obj map[string]any) bool {
	if len(obj) != 1 {
		return false
	}
	_, ok := obj[ErrorKey]
	return ok
}

func candidates(text string) []string {
	var out []string

	if c := fencedObject(text); c != "" {
		out = append(out, c)
	}
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		out = append(out, text)
	}
	if c := balancedObject(text); c != "" {
		out = append(out, c)
	}
	return out
}

// fencedObject returns the brace-balanced object inside the first markdown
// code fence that contains one, tolerating an optional language tag.
func fencedObject(text string) string {
	rest := text
	for {
		start := strings.Index(rest, fence)
		if start < 0 {
			return ""
		}
		rest = rest[start+len(fence):]

		end := strings.Index(rest, fence)
		if end < 0 {
			return ""
		}

		body := rest[:end]
		body = strings.TrimPrefix(strings.TrimLeft(body, " \t"), "json")

		if obj := balancedObject(body); obj != "" {
			return obj
		}
		rest = rest[end+len(fence):]
	}
}

// balancedObject returns the span from the first '{' to its matching '}',
// tracking nesting depth and skipping braces inside quoted strings. Returns
// "" when no balanced object exists. Balance tracking (rather than a greedy
// regex) keeps nested objects intact.
func balancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// Braces inside string values do not affect depth.
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// sanitize collapses raw newlines and carriage returns found inside quoted
// string literals, recovering output from models that illegally break lines
// mid-value. Whitespace outside strings is left alone.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		}

		if inString {
			switch c {
			case '\n':
				b.WriteByte(' ')
				continue
			case '\r':
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func tryParse(candidate string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(sanitize(candidate)), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
