// Package labels translates between opaque dictionary ids and the URL-safe
// labels used in addresses.
package labels

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLength bounds normalized labels.
const DefaultMaxLength = 64

// Normalize converts s into a URL-safe label using DefaultMaxLength.
func Normalize(s string) string {
	return NormalizeN(s, DefaultMaxLength)
}

// NormalizeN lowercases s, folds accents, keeps only ASCII word characters
// and hyphens, turns whitespace runs into single hyphens, collapses repeated
// hyphens and truncates to maxLen bytes. NormalizeN(NormalizeN(s)) equals
// NormalizeN(s).
func NormalizeN(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := true // suppresses leading hyphens

	for _, r := range norm.NFKD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			b.WriteRune(r)
			lastHyphen = false
		case r == '-' || unicode.IsSpace(r):
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "-")
	}
	return out
}

// Equal reports whether two strings normalize to the same label.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
