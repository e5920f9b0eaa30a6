package dateextract

import (
	"strconv"
	"strings"
)

// Clock is a wall-clock time of day in 24-hour form.
type Clock struct {
	Hour   int
	Minute int
}

// EndOfDay is the implicit due time for dates written without a time.
var EndOfDay = Clock{Hour: 23, Minute: 59}

// ResolveTime converts optional hour, minute and am/pm tokens into a Clock.
//
// With no tokens at all the result is EndOfDay. An hour without minutes gets
// minute 0. When assumePM is set, a bare hour below 12 written with neither a
// meridiem nor minutes is read as PM; rules opt into this individually.
func ResolveTime(hour, minute, meridiem string, assumePM bool) (Clock, error) {
	hour = strings.TrimSpace(hour)
	minute = strings.TrimSpace(minute)
	meridiem = strings.ToLower(strings.TrimSpace(meridiem))

	if hour == "" {
		if minute != "" || meridiem != "" {
			return Clock{}, ErrInvalidTime
		}
		return EndOfDay, nil
	}

	h, err := strconv.Atoi(hour)
	if err != nil {
		return Clock{}, ErrInvalidTime
	}
	m := 0
	if minute != "" {
		if m, err = strconv.Atoi(minute); err != nil {
			return Clock{}, ErrInvalidTime
		}
	}
	if m < 0 || m > 59 {
		return Clock{}, ErrInvalidTime
	}

	switch {
	case meridiem != "":
		if h < 1 || h > 12 {
			return Clock{}, ErrInvalidTime
		}
		pm := strings.HasPrefix(meridiem, "p")
		switch {
		case pm && h < 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
	case assumePM && minute == "" && h < 12:
		h += 12
	}

	if h < 0 || h > 23 {
		return Clock{}, ErrInvalidTime
	}
	return Clock{Hour: h, Minute: m}, nil
}
