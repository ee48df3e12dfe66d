package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AppendedSuffix returns the portion of new beyond the previously emitted
// length of old. When new is not longer than old it returns the empty string.
// Cumulative streams occasionally resend an identical prefix; slicing by
// length rather than by prefix comparison tolerates that.
func AppendedSuffix(old, new string) string {
	if len(new) <= len(old) {
		return ""
	}
	return new[len(old):]
}

// NormalizeText collapses whitespace and lowercases content to stabilise
// comparisons and cache keys.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	fields := strings.Fields(s)
	return strings.ToLower(strings.Join(fields, " "))
}

// ContentHash computes a SHA-256 hex digest of the normalised content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(NormalizeText(content)))
	return hex.EncodeToString(sum[:])
}
