package security

import (
	"strings"
	"unicode"
)

// Sanitize mutates args in place (spec §4.2 step 5): strips NUL and other
// control characters, trims leading and trailing whitespace on every
// string, and truncates any array beyond MaxCollectionLen. Validate has
// already rejected arguments with gross violations; Sanitize cleans up
// the rest so downstream code never has to think about stray control
// bytes. No Unicode normalization (NFC or otherwise) is applied: strings
// keep whatever composition the caller sent (see DESIGN.md).
func Sanitize(args map[string]any) {
	for k, v := range args {
		args[k] = sanitizeValue(v)
	}
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return sanitizeString(t)
	case []any:
		out := t
		if len(out) > MaxCollectionLen {
			out = out[:MaxCollectionLen]
		}
		for i, elem := range out {
			out[i] = sanitizeValue(elem)
		}
		return out
	case map[string]any:
		for k, elem := range t {
			t[k] = sanitizeValue(elem)
		}
		return t
	default:
		return v
	}
}

func sanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == 0 || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
