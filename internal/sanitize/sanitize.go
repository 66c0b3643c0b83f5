// Package sanitize normalizes untrusted tool-call arguments before they
// reach any business logic. The model's output is never trusted: strings
// are bounded, non-data values are dropped, and nested objects are cleaned
// with the same rules.
package sanitize

import (
	"math"
	"reflect"
	"strings"
	"unicode/utf8"
)

// MaxStringLength bounds every string argument. Truncation is silent.
const MaxStringLength = 1000

// Map returns a sanitized copy of raw. The input is never mutated and the
// function is idempotent: Map(Map(x)) == Map(x).
//
// Rules:
//   - nil values and non-data values (functions, channels) are dropped
//   - strings are trimmed and truncated to MaxStringLength
//   - NaN numbers are coerced to 0, not rejected
//   - booleans and arrays pass through unchanged; array elements are NOT
//     recursively sanitized (tools that accept object arrays validate
//     element shape via their parameter schema instead)
//   - nested objects are sanitized recursively
func Map(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		clean, keep := value(v)
		if keep {
			out[k] = clean
		}
	}
	return out
}

func value(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return cleanString(t), true
	case float64:
		if math.IsNaN(t) {
			return float64(0), true
		}
		return t, true
	case float32:
		if math.IsNaN(float64(t)) {
			return float32(0), true
		}
		return t, true
	case map[string]any:
		return Map(t), true
	case bool, []any, int, int32, int64:
		return t, true
	}
	// Anything else that json.Unmarshal can produce is data; reject the
	// rest (funcs, channels, pointers smuggled in by in-process callers).
	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Ptr:
		return nil, false
	default:
		return v, true
	}
}

// cleanString trims, truncates, then trims again so a cut that exposes
// trailing whitespace still yields a stable result on re-sanitization.
// The cut never splits a multi-byte rune; valid UTF-8 in means valid
// UTF-8 out.
func cleanString(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > MaxStringLength {
		cut := MaxStringLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s
}
