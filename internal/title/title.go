// Package title maps between display titles and their URL path form.
package title

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// ToPath converts a display title to its URL path segment. Spaces become
// underscores and everything outside the unreserved set is percent-encoded
// byte-wise, so non-ASCII titles round-trip through UTF-8.
func ToPath(t string) string {
	return Escape(strings.ReplaceAll(t, " ", "_"))
}

// ToTitle inverts ToPath for a canonical path segment.
func ToTitle(path string) (string, error) {
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("decode path %q: %w", path, err)
	}
	return strings.ReplaceAll(unescaped, "_", " "), nil
}

// Escape percent-encodes a path segment, keeping unreserved characters and
// the "/" used for hierarchical titles.
func Escape(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~', r == '/',
			r == '+':
			result.WriteRune(r)
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}

// Grouper returns the index-page group for a title: the leading token for
// "/"-delimited titles, the first letter otherwise, "0-9" for digits and
// "Others" for anything else.
func Grouper(t string) string {
	if t == "" {
		return "Others"
	}
	if idx := strings.Index(t, "/"); idx > 0 {
		return t[:idx]
	}
	first := []rune(t)[0]
	switch {
	case unicode.IsLetter(first):
		return strings.ToUpper(string(first))
	case unicode.IsDigit(first):
		return "0-9"
	default:
		return "Others"
	}
}
