package source

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"syllabuscal/internal/dateextract"
)

// Default length bounds for a captured text block, in characters.
const (
	DefaultMinTextLen = 20
	DefaultMaxTextLen = 2000
)

var (
	numericDateRe = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?\b`)
	isoDateRe     = regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`)
	wordRe        = regexp.MustCompile(`[A-Za-z]+\.?`)
)

var academicKeywords = []string{
	"quiz", "test", "exam", "assignment", "homework", "project",
	"due", "deadline", "midterm", "final", "submission",
	"paper", "essay", "lab", "report", "presentation",
	"course", "lecture",
}

// IsSyllabusText reports whether text looks like a piece of a syllabus worth
// running through the extractor: its length is within [minLen, maxLen], it
// contains something date-shaped, and it mentions an academic keyword.
// Non-positive bounds fall back to the defaults.
func IsSyllabusText(text string, minLen, maxLen int) bool {
	if minLen <= 0 {
		minLen = DefaultMinTextLen
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLen
	}

	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n < minLen || n > maxLen {
		return false
	}
	if !hasDateShape(text) {
		return false
	}

	lower := strings.ToLower(text)
	for _, kw := range academicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func hasDateShape(text string) bool {
	if numericDateRe.MatchString(text) || isoDateRe.MatchString(text) {
		return true
	}
	for _, w := range wordRe.FindAllString(text, -1) {
		if _, ok := dateextract.ResolveMonth(w); ok {
			return true
		}
	}
	return false
}
