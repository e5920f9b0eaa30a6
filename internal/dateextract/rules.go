package dateextract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RuleKind identifies one surface form of a date reference.
type RuleKind int

const (
	// KeywordMonthDate: "Quiz 3 due February 15, 2024 at 3:00 PM".
	KeywordMonthDate RuleKind = iota + 1
	// ColonMonthDate: "Midterm Exam: March 1, 2025".
	ColonMonthDate
	// MonthDateTitle: "Jan 30 - Drug Quiz #6".
	MonthDateTitle
	// KeywordNumericDate: "Assignment due 03/15/2024".
	KeywordNumericDate
	// KeywordISODate: "Lab report due 2024-03-30".
	KeywordISODate
	// KeywordRelative: "Essay due next Friday".
	KeywordRelative
)

var ruleNames = map[RuleKind]string{
	KeywordMonthDate:   "keyword-month-date",
	ColonMonthDate:     "colon-month-date",
	MonthDateTitle:     "month-date-title",
	KeywordNumericDate: "keyword-numeric-date",
	KeywordISODate:     "keyword-iso-date",
	KeywordRelative:    "keyword-relative",
}

func (k RuleKind) String() string {
	if n, ok := ruleNames[k]; ok {
		return n
	}
	return "rule(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText lets RuleKind serialize by name in JSON and YAML.
func (k RuleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *RuleKind) UnmarshalText(b []byte) error {
	kind, ok := ParseRuleKind(string(b))
	if !ok {
		return fmt.Errorf("unknown rule %q", b)
	}
	*k = kind
	return nil
}

// ParseRuleKind looks a rule up by its String name.
func ParseRuleKind(name string) (RuleKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range ruleNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// AllRules lists the catalog in evaluation order.
func AllRules() []RuleKind {
	return []RuleKind{
		KeywordMonthDate,
		ColonMonthDate,
		MonthDateTitle,
		KeywordNumericDate,
		KeywordISODate,
		KeywordRelative,
	}
}

// Policy holds the per-rule heuristics that earlier generations of the
// extractor disagreed on.
type Policy struct {
	// AssumePM reads a bare hour below 12 with no am/pm and no minutes as PM.
	AssumePM bool `yaml:"assume_pm" json:"assume_pm"`
	// RollForward moves a date whose year was inferred to next year when it
	// already lies in the past.
	RollForward bool `yaml:"roll_forward" json:"roll_forward"`
}

// DefaultPolicy returns the built-in policy for a rule.
func DefaultPolicy(k RuleKind) Policy {
	switch k {
	case KeywordMonthDate, MonthDateTitle:
		return Policy{RollForward: true}
	default:
		return Policy{}
	}
}

// AmbiguousOrder decides how a numeric date such as 03/05/2024, where both
// leading components could be a month, is read.
type AmbiguousOrder int

const (
	// SmallerFirst takes the smaller component as the month and the larger
	// as the day.
	SmallerFirst AmbiguousOrder = iota
	// MonthFirst reads the components as MM/DD.
	MonthFirst
	// DayFirst reads the components as DD/MM.
	DayFirst
)

func (o AmbiguousOrder) String() string {
	switch o {
	case MonthFirst:
		return "month-first"
	case DayFirst:
		return "day-first"
	default:
		return "smaller-first"
	}
}

// ParseAmbiguousOrder accepts the String form of an order.
func ParseAmbiguousOrder(s string) (AmbiguousOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "smaller-first":
		return SmallerFirst, nil
	case "month-first", "mm/dd", "us":
		return MonthFirst, nil
	case "day-first", "dd/mm":
		return DayFirst, nil
	default:
		return SmallerFirst, fmt.Errorf("dateextract: unknown ambiguous order %q", s)
	}
}

const (
	// Full names come before their abbreviations so the longer one wins;
	// dayPart requires whitespace right after, which rejects "marks 10".
	monthWord = `\b((?:january|february|march|april|may|june|july|august|september|october|november|december|` +
		`jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?)`
	dayPart   = `[ \t]+(\d{1,2})(?:st|nd|rd|th)?\b`
	yearPart  = `(?:[ \t]*,?[ \t]*((?:19|20)\d{2})\b)?`
	timePart  = `(?:[ \t]*,?[ \t]*(?:at|@|by)[ \t]*(\d{1,2})(?::(\d{2}))?[ \t]*(a\.?m\.?|p\.?m\.?)?\b)?`
	titleLead = `\b(\w.*?)`
)

// Patterns are compiled once and only ever read.
var (
	reKeywordMonthDate = regexp.MustCompile(`(?i)` + titleLead +
		`\b(due|exam|deadline|submission|test|quiz|midterm|final)\b.*?` +
		monthWord + dayPart + yearPart + timePart)

	reColonMonthDate = regexp.MustCompile(`(?i)([^:\n]+):[ \t]*` +
		monthWord + dayPart + yearPart + timePart)

	reMonthDateTitle = regexp.MustCompile(`(?i)` +
		monthWord + dayPart + yearPart + `[ \t]*[-–—:][ \t]*([^\n]+)`)

	reKeywordNumericDate = regexp.MustCompile(`(?i)` + titleLead +
		`\b(due|deadline|by|submission|submit)\b[ \t]*:?[ \t]*` +
		`(\d{1,2})[/.-](\d{1,2})[/.-](\d{4}|\d{2})\b` + timePart)

	reKeywordISODate = regexp.MustCompile(`(?i)` + titleLead +
		`(?:\b(due|deadline|by|submission|submit)\b[ \t]*:?|(:))[ \t]*` +
		`(\d{4})[/-](\d{1,2})[/-](\d{1,2})\b`)

	reKeywordRelative = regexp.MustCompile(`(?i)` + titleLead +
		`\b(due|deadline|by)[ \t]+(next|this)[ \t]+` +
		`(monday|tuesday|wednesday|thursday|friday|saturday|sunday|week|month)\b`)
)

func patternFor(k RuleKind) *regexp.Regexp {
	switch k {
	case KeywordMonthDate:
		return reKeywordMonthDate
	case ColonMonthDate:
		return reColonMonthDate
	case MonthDateTitle:
		return reMonthDateTitle
	case KeywordNumericDate:
		return reKeywordNumericDate
	case KeywordISODate:
		return reKeywordISODate
	case KeywordRelative:
		return reKeywordRelative
	default:
		return nil
	}
}

// ruleContext carries what a handler needs beyond its captures.
type ruleContext struct {
	policy Policy
	order  AmbiguousOrder
	now    time.Time
	loc    *time.Location
}

// applyRule interprets the submatches of one rule's pattern. m[0] is the
// whole match.
func applyRule(kind RuleKind, m []string, rc ruleContext) (Event, error) {
	switch kind {
	case KeywordMonthDate:
		// title, keyword, month, day, year, hour, minute, meridiem
		return monthDayEvent(kind, joinTitle(m[1], m[2]), m[3], m[4], m[5], m[6], m[7], m[8], rc)

	case ColonMonthDate:
		return monthDayEvent(kind, cleanTitle(m[1]), m[2], m[3], m[4], m[5], m[6], m[7], rc)

	case MonthDateTitle:
		title := cleanTitle(m[4])
		if title == "" {
			return Event{}, ErrEmptyTitle
		}
		return monthDayEvent(kind, title+" "+Category(title), m[1], m[2], m[3], "", "", "", rc)

	case KeywordNumericDate:
		n1, err1 := strconv.Atoi(m[3])
		n2, err2 := strconv.Atoi(m[4])
		if err1 != nil || err2 != nil {
			return Event{}, ErrInvalidDate
		}
		month, day := resolveNumeric(n1, n2, rc.order)
		clock, err := ResolveTime(m[6], m[7], m[8], rc.policy.AssumePM)
		if err != nil {
			return Event{}, err
		}
		return datedEvent(kind, joinTitle(m[1], m[2]), m[5], time.Month(month), day, clock, rc)

	case KeywordISODate:
		title := cleanTitle(m[1])
		if m[2] != "" {
			title = joinTitle(m[1], m[2])
		}
		month, err1 := strconv.Atoi(m[5])
		day, err2 := strconv.Atoi(m[6])
		if err1 != nil || err2 != nil {
			return Event{}, ErrInvalidDate
		}
		return datedEvent(kind, title, m[4], time.Month(month), day, EndOfDay, rc)

	case KeywordRelative:
		title := joinTitle(m[1], m[2])
		if title == "" {
			return Event{}, ErrEmptyTitle
		}
		return Event{Title: title, Date: relativeDate(m[3], m[4], rc.now, rc.loc), Rule: kind}, nil

	default:
		return Event{}, fmt.Errorf("dateextract: unknown rule %v", kind)
	}
}

func monthDayEvent(kind RuleKind, title, monthTok, dayTok, yearTok, hour, minute, meridiem string, rc ruleContext) (Event, error) {
	month, ok := ResolveMonth(monthTok)
	if !ok {
		return Event{}, ErrUnknownMonth
	}
	day, err := strconv.Atoi(dayTok)
	if err != nil {
		return Event{}, ErrInvalidDate
	}
	clock, err := ResolveTime(hour, minute, meridiem, rc.policy.AssumePM)
	if err != nil {
		return Event{}, err
	}
	return datedEvent(kind, title, yearTok, month, day, clock, rc)
}

func datedEvent(kind RuleKind, title, yearTok string, month time.Month, day int, clock Clock, rc ruleContext) (Event, error) {
	if title == "" {
		return Event{}, ErrEmptyTitle
	}
	t, err := dateFromParts(yearTok, month, day, clock, rc.policy.RollForward, rc.now, rc.loc)
	if err != nil {
		return Event{}, err
	}
	return Event{Title: title, Date: t, Rule: kind}, nil
}

// resolveNumeric orders the two leading components of a numeric date.
// A component above 12 can only be a day, which settles the order; the
// ambiguous case falls back to the configured order.
func resolveNumeric(n1, n2 int, order AmbiguousOrder) (month, day int) {
	switch {
	case n1 > 12:
		return n2, n1
	case n2 > 12:
		return n1, n2
	}
	switch order {
	case MonthFirst:
		return n1, n2
	case DayFirst:
		return n2, n1
	default:
		return min(n1, n2), max(n1, n2)
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// relativeDate resolves "next friday", "this week" and friends against now.
// The result is always at end of day.
func relativeDate(qualifier, unit string, now time.Time, loc *time.Location) time.Time {
	today := now.In(loc)
	unit = strings.ToLower(unit)

	var d time.Time
	switch unit {
	case "week":
		d = today.AddDate(0, 0, 7)
	case "month":
		d = today.AddDate(0, 1, 0)
	default:
		offset := int(weekdays[unit]) - int(today.Weekday())
		if offset <= 0 {
			offset += 7
		}
		if strings.EqualFold(qualifier, "next") {
			offset += 7
		}
		d = today.AddDate(0, 0, offset)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), EndOfDay.Hour, EndOfDay.Minute, 0, 0, loc)
}

var categories = []string{"quiz", "exam", "test", "homework", "project", "midterm", "final"}

// Category infers the kind of academic item a title names. Titles that
// mention none of the known kinds are treated as assignments.
func Category(title string) string {
	lower := strings.ToLower(title)
	for _, c := range categories {
		if strings.Contains(lower, c) {
			return c
		}
	}
	return "assignment"
}

func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinTitle(title, keyword string) string {
	title = cleanTitle(title)
	if title == "" {
		return ""
	}
	return title + " " + strings.TrimSpace(keyword)
}
