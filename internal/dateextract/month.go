package dateextract

import (
	"strings"
	"time"
)

var monthTable = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ResolveMonth maps a month name or abbreviation to its month. Matching is
// case-insensitive and a single trailing period is accepted ("Jan.", "Sept.").
// Any other token is reported as unresolved.
func ResolveMonth(token string) (time.Month, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.TrimSuffix(t, ".")
	m, ok := monthTable[t]
	return m, ok
}
