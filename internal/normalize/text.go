package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Description returns the display form of a free-text description: NFKC
// normalized, control characters removed, whitespace collapsed.
func Description(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Fold returns the matching form of a description: the display form,
// case-folded. Fingerprints and keyword matching both use it.
func Fold(s string) string {
	return cases.Fold().String(Description(s))
}
