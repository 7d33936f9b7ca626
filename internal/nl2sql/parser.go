package nl2sql

import (
	"strings"
	"unicode"
)

const sqlMarker = "The SQL query I'll be generating is:"

// ParseSQL extracts the statement following the marker phrase, or the whole
// text when the marker is absent, collapsed onto a single line.
func ParseSQL(raw string) string {
	text := raw
	if _, after, found := strings.Cut(raw, sqlMarker); found {
		text = after
	}
	return strings.Join(strings.FieldsFunc(text, isSeparator), " ")
}

// isSeparator widens unicode.IsSpace with the ASCII information separators
// U+001C..U+001F, which Unicode-aware regex \s also matches.
func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}
