// Package slug implements the token rule used for every derived identifier and
// hierarchical tag value: NFKC fold, lowercase, and a single hyphen for every run
// of characters that are neither letters nor digits.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// trimSet holds characters stripped from both ends after hyphenation.
const trimSet = "-'\"`‘’“”"

// Normalize converts s into a tag token. It is idempotent and returns the
// empty string when s contains no letters or digits.
func Normalize(s string) string {
	folded := norm.NFKC.String(strings.ToLower(norm.NFKC.String(s)))

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return strings.Trim(b.String(), trimSet)
}

// Join normalizes each part and hyphen-joins the non-empty results.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return strings.Join(out, "-")
}
