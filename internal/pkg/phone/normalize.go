// Package phone canonicalizes user-entered phone numbers. The result is used
// both as the verification store key and as the SMS destination, so issuance
// and confirmation must go through the same function.
package phone

import "strings"

// Normalize keeps a leading '+' when the trimmed input starts with one and
// drops every other non-digit character. It never fails: empty or
// digit-less input yields "" or "+".
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(s))
	if strings.HasPrefix(s, "+") {
		b.WriteByte('+')
		s = s[1:]
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
