package helpers

import (
	"strconv"
	"strings"
)

// PartialStringField extracts the (possibly still growing) string value of a
// top-level field from an incomplete JSON document. Escape sequences are
// decoded; a trailing half-finished escape is dropped rather than emitted.
// Returns the empty string when the field has not started yet.
func PartialStringField(raw, field string) string {
	start := fieldValueStart(raw, field)
	if start < 0 || start >= len(raw) || raw[start] != '"' {
		return ""
	}
	var b strings.Builder
	i := start + 1
	for i < len(raw) {
		c := raw[i]
		if c == '"' {
			break
		}
		if c == '\\' {
			decoded, consumed, ok := decodeEscape(raw[i:])
			if !ok {
				// Incomplete escape at the stream edge; wait for more bytes.
				break
			}
			b.WriteString(decoded)
			i += consumed
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// PartialStringArray returns the complete string elements of an array field
// in an incomplete JSON document. An unterminated final element is omitted.
func PartialStringArray(raw, field string) []string {
	start := fieldValueStart(raw, field)
	if start < 0 || start >= len(raw) || raw[start] != '[' {
		return nil
	}
	var out []string
	i := start + 1
	for i < len(raw) {
		switch raw[i] {
		case ']':
			return out
		case '"':
			value, end, ok := scanCompleteString(raw, i)
			if !ok {
				return out
			}
			out = append(out, value)
			i = end
		default:
			i++
		}
	}
	return out
}

// fieldValueStart locates the first byte of the value for "field": in raw.
// Returns -1 when the field (or its colon) has not arrived yet.
func fieldValueStart(raw, field string) int {
	needle := `"` + field + `"`
	idx := strings.Index(raw, needle)
	if idx < 0 {
		return -1
	}
	i := idx + len(needle)
	for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\n' || raw[i] == '\r') {
		i++
	}
	if i >= len(raw) || raw[i] != ':' {
		return -1
	}
	i++
	for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\n' || raw[i] == '\r') {
		i++
	}
	if i >= len(raw) {
		return -1
	}
	return i
}

// scanCompleteString reads a fully terminated JSON string starting at the
// opening quote. ok is false when the closing quote has not arrived.
func scanCompleteString(raw string, start int) (value string, end int, ok bool) {
	var b strings.Builder
	i := start + 1
	for i < len(raw) {
		c := raw[i]
		if c == '"' {
			return b.String(), i + 1, true
		}
		if c == '\\' {
			decoded, consumed, complete := decodeEscape(raw[i:])
			if !complete {
				return "", i, false
			}
			b.WriteString(decoded)
			i += consumed
			continue
		}
		b.WriteByte(c)
		i++
	}
	return "", i, false
}

// decodeEscape decodes one JSON escape sequence at the start of s.
func decodeEscape(s string) (decoded string, consumed int, ok bool) {
	if len(s) < 2 {
		return "", 0, false
	}
	switch s[1] {
	case '"':
		return `"`, 2, true
	case '\\':
		return `\`, 2, true
	case '/':
		return "/", 2, true
	case 'n':
		return "\n", 2, true
	case 't':
		return "\t", 2, true
	case 'r':
		return "\r", 2, true
	case 'b', 'f':
		return "", 2, true
	case 'u':
		if len(s) < 6 {
			return "", 0, false
		}
		code, err := strconv.ParseUint(s[2:6], 16, 32)
		if err != nil {
			return "", 6, true
		}
		return string(rune(code)), 6, true
	default:
		return string(s[1]), 2, true
	}
}
