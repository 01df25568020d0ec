package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxReasonLength is the maximum number of runes kept for reasons and labels.
const MaxReasonLength = 500

// MultipleSpaces matches any sequence of whitespace (including newlines).
var MultipleSpaces = regexp.MustCompile(`\s+`)

// CompressAllWhitespace replaces all whitespace sequences (including newlines) with a single space.
func CompressAllWhitespace(s string) string {
	return strings.TrimSpace(MultipleSpaces.ReplaceAllString(s, " "))
}

// SanitizeText normalizes free text entered by staff members.
// The text is NFKC normalized, control characters are removed, whitespace is compressed
// and the result is truncated to maxRunes runes.
func SanitizeText(s string, maxRunes int) string {
	if s == "" {
		return ""
	}

	transformer := transform.Chain(norm.NFKC, runes.Remove(runes.Predicate(isStrippedControl)))

	result, _, err := transform.String(transformer, s)
	if err != nil {
		result = s
	}

	return Truncate(CompressAllWhitespace(result), maxRunes)
}

// Truncate shortens s to at most maxRunes runes. A non-positive maxRunes disables truncation.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}

	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}

	return strings.TrimSpace(string(r[:maxRunes]))
}

// isStrippedControl reports whether r is a control character other than whitespace.
func isStrippedControl(r rune) bool {
	return unicode.IsControl(r) && !unicode.IsSpace(r)
}
