package source

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize prepares copied or scraped text for extraction: NFKC folds
// full-width digits and ligatures, non-breaking and other exotic spaces
// become plain spaces, runs of spaces and tabs collapse to one, and lines
// are trimmed. Line breaks are kept since titles never span lines.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, isInlineSpace), " ")
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func isInlineSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\v', '\f', '\u00a0', '\u200b', '\u202f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}
