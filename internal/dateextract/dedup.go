package dateextract

import (
	"strconv"
	"time"
)

// Key is the identity of an extracted event: its title and the instant it
// falls on, to the millisecond. Stores use the same key to skip events they
// already hold.
func Key(title string, t time.Time) string {
	return title + "|" + strconv.FormatInt(t.UnixMilli(), 10)
}

// dedup remembers the keys seen during one extraction call.
type dedup map[string]struct{}

// add reports whether ev is new and records it.
func (d dedup) add(ev Event) bool {
	k := Key(ev.Title, ev.Date)
	if _, ok := d[k]; ok {
		return false
	}
	d[k] = struct{}{}
	return true
}
