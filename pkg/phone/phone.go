// Package phone normalises Iraqi mobile numbers to the local 07XXXXXXXXX form.
package phone

import (
	"regexp"
	"strings"
)

var localPattern = regexp.MustCompile(`^07\d{9}$`)

// Normalize accepts 0750xxxxxxx, 750xxxxxxx, +964750xxxxxxx and
// 964750xxxxxxx (with any separators) and returns the local form.
// Input it cannot interpret is returned stripped but otherwise unchanged.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	s = strings.TrimPrefix(s, "+964")
	s = strings.TrimPrefix(s, "964")

	switch {
	case len(s) == 10 && strings.HasPrefix(s, "7"):
		return "0" + s
	case len(s) == 11 && strings.HasPrefix(s, "07"):
		return s
	}
	return s
}

// IsValid reports whether raw normalises to a valid local mobile number.
func IsValid(raw string) bool {
	return localPattern.MatchString(Normalize(raw))
}

// Parse normalises raw and reports whether the result is valid.
func Parse(raw string) (string, bool) {
	p := Normalize(raw)
	return p, localPattern.MatchString(p)
}
