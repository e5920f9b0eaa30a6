package ics

import (
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/teambition/rrule-go"

	"syllabuscal/internal/dateextract"
	appLog "syllabuscal/internal/log"
	"syllabuscal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500
	maxContextRunes               = 160
)

// ExpandConfig controls how feed events become deadlines.
type ExpandConfig struct {
	// Location is the zone all-day deadlines are placed in. Nil means
	// time.Local.
	Location *time.Location

	// RangeStart / RangeEnd bound the deadlines produced, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the deadlines produced and the UIDs whose recurrence
// hit the cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// ExpandOccurrences turns feed events into deadlines within the configured
// range. Recurring events are expanded with EXDATE and RECURRENCE-ID
// overrides applied. A timed event is due at its start; an all-day event is
// due at 23:59 on its day, the same convention the text extractor uses for
// dates without a time. Feed deadlines carry confidence 1.
func ExpandOccurrences(events []FeedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	var (
		uids      []string
		base      = make(map[string][]FeedEvent)
		overrides = make(map[string][]FeedEvent)
	)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := base[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		base[ev.UID] = append(base[ev.UID], ev)
	}

	out := make([]model.Event, 0)
	for _, uid := range uids {
		for _, ev := range base[uid] {
			starts, hitCap := occurrenceStarts(ev, cfg)
			if hitCap {
				result.TruncatedEvents = append(result.TruncatedEvents, uid)
				appLog.Error("expand: truncated occurrences for UID due to cap",
					errors.New("max occurrences reached"), "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
			}
			for _, start := range starts {
				inst := ev
				if o, ok := findOverride(overrides[uid], start); ok {
					inst = o
					start = o.Start
				}
				due := deadlineFor(inst, start, cfg.Location)
				if due.Before(cfg.RangeStart) || due.After(cfg.RangeEnd) {
					continue
				}
				out = append(out, toModel(inst, due))
			}
		}
	}

	slices.SortStableFunc(out, func(a, b model.Event) int {
		return a.Date.Compare(b.Date)
	})
	result.Events = out
	return result, nil
}

// occurrenceStarts lists the instance starts of ev. Single events are
// returned as-is and range-filtered by the caller after the all-day shift.
func occurrenceStarts(ev FeedEvent, cfg ExpandConfig) ([]time.Time, bool) {
	if ev.RawRRule == "" {
		return []time.Time{ev.Start}, false
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen by a day so all-day instances whose 23:59 falls in range are kept.
	loc := ev.Start.Location()
	from := cfg.RangeStart.Add(-24 * time.Hour).In(loc)
	to := cfg.RangeEnd.In(loc)

	starts := set.Between(from, to, true)
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		return starts[:cfg.MaxOccurrencesPerEvent], true
	}
	return starts, false
}

func findOverride(overrides []FeedEvent, start time.Time) (FeedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return FeedEvent{}, false
}

func deadlineFor(ev FeedEvent, start time.Time, loc *time.Location) time.Time {
	if !ev.AllDay {
		return start
	}
	eod := dateextract.EndOfDay
	return time.Date(start.Year(), start.Month(), start.Day(), eod.Hour, eod.Minute, 0, 0, loc)
}

func toModel(ev FeedEvent, due time.Time) model.Event {
	typ := dateextract.Category(ev.Summary)
	if len(ev.Categories) > 0 {
		typ = strings.ToLower(ev.Categories[0])
	}
	return model.Event{
		Title:        ev.Summary,
		Date:         due,
		Source:       ev.FeedURL,
		AutoCaptured: true,
		Context:      snippet(ev.Description),
		Confidence:   1,
		Type:         typ,
	}
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxContextRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxContextRunes])
}
