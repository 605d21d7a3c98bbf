package telegram

import (
	"html"
	"strconv"
	"strings"
)

// Escape makes s safe inside an HTML-mode message.
func Escape(s string) string {
	return html.EscapeString(s)
}

func Bold(s string) string {
	return "<b>" + Escape(s) + "</b>"
}

func Code(s string) string {
	return "<code>" + Escape(s) + "</code>"
}

// Amount renders n with thousands separators, e.g. 1,250,000.
func Amount(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Mention names a user by display name, falling back to @username and then
// the numeric id.
func Mention(displayName, username string, id int64) string {
	switch {
	case displayName != "":
		return Escape(displayName)
	case username != "":
		return "@" + Escape(username)
	default:
		return strconv.FormatInt(id, 10)
	}
}
