package types

import "strings"

// Normalize returns the canonical form of text used for deduplication and
// synthesis-cache keys: trimmed, lower-cased, with trailing punctuation and
// whitespace stripped. Inner punctuation is preserved so that distinct
// sentences never collapse onto one key.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(s, ".!?,;: \t\n\r")
}
