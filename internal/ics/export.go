package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"syllabuscal/internal/model"
)

// ExportOptions controls calendar output.
type ExportOptions struct {
	ProductID string
	// EventDuration is DTEND - DTSTART for every event. Zero means one hour.
	EventDuration time.Duration
	// Now stamps DTSTAMP and seeds generated UIDs. Zero means time.Now().
	Now time.Time
}

// DefaultProductID is the PRODID used when ExportOptions leaves it empty.
const DefaultProductID = "-//Syllabus Date Extractor//EN"

// Export renders events as a PUBLISH calendar. Start and end are written in
// UTC. Events without an ID get a UID derived from the export time and
// their position.
func Export(events []model.Event, opts ExportOptions) string {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.EventDuration <= 0 {
		opts.EventDuration = time.Hour
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	for i, ev := range events {
		uid := ev.ID
		if uid == "" {
			uid = fmt.Sprintf("%d-%d", opts.Now.UnixMilli(), i)
		}

		ve := cal.AddEvent(uid + "@syllabusextractor")
		ve.SetDtStampTime(opts.Now.UTC())
		ve.SetStartAt(ev.Date.UTC())
		ve.SetEndAt(ev.Date.UTC().Add(opts.EventDuration))
		ve.SetSummary(ev.Title)
		ve.SetDescription(description(ev))
		if ev.Type != "" {
			ve.AddProperty(ical.ComponentPropertyCategories, strings.ToUpper(ev.Type))
		}
		if strings.HasPrefix(ev.Source, "http://") || strings.HasPrefix(ev.Source, "https://") {
			ve.SetURL(ev.Source)
		}
	}

	return cal.Serialize()
}

func description(ev model.Event) string {
	d := ev.Title + " - Extracted from syllabus"
	if ev.Context != "" && ev.Context != ev.Title {
		d += "\n" + ev.Context
	}
	return d
}
