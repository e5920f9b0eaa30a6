package dateextract

import (
	"errors"
	"testing"
	"time"
)

func TestResolveMonth(t *testing.T) {
	tests := []struct {
		token  string
		want   time.Month
		wantOK bool
	}{
		{"January", time.January, true},
		{"jan", time.January, true},
		{"Jan.", time.January, true},
		{"MAY", time.May, true},
		{"may.", time.May, true},
		{"Sept", time.September, true},
		{"sept.", time.September, true},
		{"sep", time.September, true},
		{"December", time.December, true},
		{"Frogember", 0, false},
		{"Marching", 0, false},
		{"Junk", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := ResolveMonth(tt.token)
			if ok != tt.wantOK {
				t.Fatalf("ResolveMonth(%q) ok = %v, want %v", tt.token, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ResolveMonth(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestResolveTime(t *testing.T) {
	tests := []struct {
		name     string
		hour     string
		minute   string
		meridiem string
		assumePM bool
		want     Clock
		wantErr  bool
	}{
		{name: "no tokens is end of day", want: Clock{23, 59}},
		{name: "pm afternoon", hour: "3", minute: "00", meridiem: "PM", want: Clock{15, 0}},
		{name: "noon", hour: "12", meridiem: "pm", want: Clock{12, 0}},
		{name: "midnight", hour: "12", minute: "30", meridiem: "am", want: Clock{0, 30}},
		{name: "dotted meridiem", hour: "11", minute: "59", meridiem: "p.m.", want: Clock{23, 59}},
		{name: "morning", hour: "9", minute: "15", meridiem: "a.m.", want: Clock{9, 15}},
		{name: "bare hour defaults minute", hour: "14", want: Clock{14, 0}},
		{name: "bare hour stays am without policy", hour: "3", want: Clock{3, 0}},
		{name: "bare hour assumed pm", hour: "3", assumePM: true, want: Clock{15, 0}},
		{name: "assume pm ignores hour with minutes", hour: "3", minute: "30", assumePM: true, want: Clock{3, 30}},
		{name: "assume pm ignores explicit am", hour: "3", meridiem: "am", assumePM: true, want: Clock{3, 0}},
		{name: "24h hour", hour: "18", minute: "45", want: Clock{18, 45}},
		{name: "hour out of range with meridiem", hour: "13", meridiem: "pm", wantErr: true},
		{name: "hour out of range", hour: "24", wantErr: true},
		{name: "minute out of range", hour: "10", minute: "75", wantErr: true},
		{name: "minute without hour", minute: "30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTime(tt.hour, tt.minute, tt.meridiem, tt.assumePM)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTime) {
					t.Fatalf("expected ErrInvalidTime, got %v (%+v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveTime() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveYear(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		token        string
		want         int
		wantExplicit bool
		wantOK       bool
	}{
		{"2025", 2025, true, true},
		{"1999", 1999, true, true},
		{"24", 2024, true, true},
		{"07", 2007, true, true},
		{"", 2024, false, true},
		{"202", 0, false, false},
		{"abcd", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, explicit, ok := ResolveYear(tt.token, now)
			if ok != tt.wantOK || got != tt.want || explicit != tt.wantExplicit {
				t.Errorf("ResolveYear(%q) = (%d, %v, %v), want (%d, %v, %v)",
					tt.token, got, explicit, ok, tt.want, tt.wantExplicit, tt.wantOK)
			}
		})
	}
}

func TestDateFromPartsRollForward(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		year    string
		month   time.Month
		day     int
		roll    bool
		want    time.Time
		wantErr bool
	}{
		{
			name:  "future date keeps current year",
			month: time.September, day: 3, roll: true,
			want: time.Date(2024, time.September, 3, 23, 59, 0, 0, time.UTC),
		},
		{
			name:  "past date rolls to next year",
			month: time.March, day: 3, roll: true,
			want: time.Date(2025, time.March, 3, 23, 59, 0, 0, time.UTC),
		},
		{
			name:  "past date without policy stays",
			month: time.March, day: 3,
			want: time.Date(2024, time.March, 3, 23, 59, 0, 0, time.UTC),
		},
		{
			name: "explicit year is never rolled",
			year: "2023", month: time.March, day: 3, roll: true,
			want: time.Date(2023, time.March, 3, 23, 59, 0, 0, time.UTC),
		},
		{
			name:  "today later in the day is not past",
			month: time.June, day: 1, roll: true,
			want: time.Date(2024, time.June, 1, 23, 59, 0, 0, time.UTC),
		},
		{name: "feb 30 is invalid", year: "2024", month: time.February, day: 30, wantErr: true},
		{name: "april 31 is invalid", year: "2024", month: time.April, day: 31, wantErr: true},
		{name: "month 13 is invalid", year: "2024", month: 13, day: 1, wantErr: true},
		{name: "day 0 is invalid", year: "2024", month: time.May, day: 0, wantErr: true},
		{
			name: "leap day",
			year: "2024", month: time.February, day: 29,
			want: time.Date(2024, time.February, 29, 23, 59, 0, 0, time.UTC),
		},
		{name: "leap day in common year", year: "2023", month: time.February, day: 29, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dateFromParts(tt.year, tt.month, tt.day, EndOfDay, tt.roll, now, time.UTC)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Fatalf("expected ErrInvalidDate, got %v (%v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("dateFromParts() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveNumeric(t *testing.T) {
	tests := []struct {
		name      string
		n1, n2    int
		order     AmbiguousOrder
		wantMonth int
		wantDay   int
	}{
		{"first above 12 is day first", 15, 3, SmallerFirst, 3, 15},
		{"second above 12 is month first", 3, 15, SmallerFirst, 3, 15},
		{"ambiguous smaller first", 3, 5, SmallerFirst, 3, 5},
		{"ambiguous smaller first reversed", 5, 3, SmallerFirst, 3, 5},
		{"ambiguous month first", 5, 3, MonthFirst, 5, 3},
		{"ambiguous day first", 5, 3, DayFirst, 3, 5},
		{"unambiguous ignores order", 3, 15, DayFirst, 3, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d := resolveNumeric(tt.n1, tt.n2, tt.order)
			if m != tt.wantMonth || d != tt.wantDay {
				t.Errorf("resolveNumeric(%d, %d, %v) = (%d, %d), want (%d, %d)",
					tt.n1, tt.n2, tt.order, m, d, tt.wantMonth, tt.wantDay)
			}
		})
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Drug Quiz #6", "quiz"},
		{"Midterm Exam", "exam"},
		{"Unit test 2", "test"},
		{"Homework 4", "homework"},
		{"Group Project proposal", "project"},
		{"Midterm review", "midterm"},
		{"Final presentation", "final"},
		{"Reading response", "assignment"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := Category(tt.title); got != tt.want {
				t.Errorf("Category(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestParseAmbiguousOrder(t *testing.T) {
	for _, o := range []AmbiguousOrder{SmallerFirst, MonthFirst, DayFirst} {
		got, err := ParseAmbiguousOrder(o.String())
		if err != nil || got != o {
			t.Errorf("ParseAmbiguousOrder(%q) = (%v, %v), want %v", o.String(), got, err, o)
		}
	}
	if _, err := ParseAmbiguousOrder("sideways"); err == nil {
		t.Error("expected error for unknown order")
	}
}

func TestParseRuleKind(t *testing.T) {
	for _, k := range AllRules() {
		got, ok := ParseRuleKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseRuleKind(%q) = (%v, %v), want %v", k.String(), got, ok, k)
		}
	}
	if _, ok := ParseRuleKind("nope"); ok {
		t.Error("expected unknown rule name to fail")
	}
}
