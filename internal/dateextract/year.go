package dateextract

import (
	"strconv"
	"strings"
	"time"
)

// ResolveYear turns an optional year token into a four-digit year. Four
// digits are used verbatim, two digits are read as 20xx, and an empty token
// yields the year of now. The bool result reports whether the year was
// written explicitly.
func ResolveYear(token string, now time.Time) (year int, explicit bool, ok bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return now.Year(), false, true
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, false, false
	}
	switch len(token) {
	case 2:
		return 2000 + n, true, true
	case 4:
		return n, true, true
	default:
		return 0, false, false
	}
}

// civilDate builds a local time from its parts and reports whether the parts
// describe a real calendar date. time.Date silently normalizes overflow
// (Feb 30 becomes Mar 1), so the result is compared back against the input.
func civilDate(year int, month time.Month, day int, c Clock, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, c.Hour, c.Minute, 0, 0, loc)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// dateFromParts resolves the year, validates the date and, when roll is set
// and the year was inferred, moves an already-past date to next year.
func dateFromParts(yearToken string, month time.Month, day int, c Clock, roll bool, now time.Time, loc *time.Location) (time.Time, error) {
	year, explicit, ok := ResolveYear(yearToken, now.In(loc))
	if !ok {
		return time.Time{}, ErrInvalidDate
	}
	t, ok := civilDate(year, month, day, c, loc)
	if !ok {
		return time.Time{}, ErrInvalidDate
	}
	if roll && !explicit && t.Before(now) {
		if t, ok = civilDate(year+1, month, day, c, loc); !ok {
			return time.Time{}, ErrInvalidDate
		}
	}
	return t, nil
}
