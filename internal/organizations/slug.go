package organizations

import (
	"strings"
	"unicode"
)

// Slugify lowercases s and collapses every run of non-alphanumerics into a
// single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		if r == '\'' {
			continue
		}
		pendingDash = true
	}
	return b.String()
}
