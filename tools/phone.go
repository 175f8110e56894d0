package tools

import (
	"strings"
	"unicode"
)

// NormalizePhone reduces a raw counterparty number to digits-only
// international form (no '+', no separators). Returns "" when nothing
// digit-like is left, so callers can fall back to the jid.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}
