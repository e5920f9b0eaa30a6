package model

import (
	"time"

	"syllabuscal/internal/dateextract"
)

// Event is a stored deadline: an extracted (title, date) pair plus the
// context it was captured in.
type Event struct {
	ID string `json:"id"`

	Title string    `json:"title"`
	Date  time.Time `json:"date"`

	// Source is the page URL, feed URL or file path the event came from.
	Source string `json:"source,omitempty"`
	// Added is when the event was first captured.
	Added time.Time `json:"added"`
	// AutoCaptured is false only for events entered by hand.
	AutoCaptured bool `json:"auto_captured"`

	// Context is a short snippet of the text the date was found in.
	Context string `json:"context,omitempty"`
	// Confidence is 0..1; feed imports are 1, text extraction depends on
	// the rule that matched.
	Confidence float64 `json:"confidence"`
	// Type is a category tag such as "exam", "quiz" or "assignment".
	Type string `json:"type,omitempty"`
}

// Key is the deduplication key shared with the extraction engine.
func (e Event) Key() string {
	return dateextract.Key(e.Title, e.Date)
}
