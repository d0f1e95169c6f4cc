package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sanitize folds text to NFKD and keeps printable ASCII plus newline,
// carriage return and tab.
func Sanitize(text string) string {
	decomposed := norm.NFKD.String(text)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if (r >= 0x20 && r <= 0x7E) || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
