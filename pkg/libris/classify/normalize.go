package classify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeID derives a group key from a label: fully Unicode lower-cased
// (İ becomes "i" plus a combining dot), every run of characters outside
// [a-z0-9] collapsed to a single underscore, and underscores trimmed from
// both ends. The result is a fixed point of
// NormalizeID. A label without any ASCII letter or digit yields "".
func NormalizeID(label string) string {
	// A Caser keeps state between calls, so each call gets its own.
	lower := cases.Lower(language.Und).String(label)

	var b strings.Builder
	b.Grow(len(lower))
	pending := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
