// Package dateextract finds academic deadline dates in free text.
//
// The engine runs an ordered catalog of regular-expression rules over the whole
// input. Every rule scans independently, so one sentence can be matched by more
// than one rule; the resulting candidates are validated, deduplicated by
// (title, instant) and returned in ascending date order.
package dateextract

import (
	"errors"
	"time"
)

// Event is a single dated item found in text.
type Event struct {
	Title string    `json:"title"`
	Date  time.Time `json:"date"`

	// Rule records which rule produced the event. It is not part of the
	// deduplication key.
	Rule RuleKind `json:"rule"`
}

var (
	// ErrUnknownMonth is returned by a rule when its month token does not
	// resolve to a calendar month.
	ErrUnknownMonth = errors.New("dateextract: unknown month")
	// ErrInvalidTime is returned when hour/minute tokens are out of range.
	ErrInvalidTime = errors.New("dateextract: invalid time of day")
	// ErrInvalidDate is returned when year/month/day do not form a real date.
	ErrInvalidDate = errors.New("dateextract: invalid calendar date")
	// ErrEmptyTitle is returned when a rule matched but left nothing to name the event.
	ErrEmptyTitle = errors.New("dateextract: empty title")
)
