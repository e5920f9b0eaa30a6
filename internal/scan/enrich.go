package scan

import (
	"strings"
	"unicode/utf8"

	"syllabuscal/internal/dateextract"
	"syllabuscal/internal/model"
)

const maxContextRunes = 160

// Confidence by rule. Rules anchored on a deadline keyword score higher
// than the bare "<month> <day> <title>" shape.
var ruleConfidence = map[dateextract.RuleKind]float64{
	dateextract.KeywordMonthDate:   0.9,
	dateextract.ColonMonthDate:     0.85,
	dateextract.KeywordISODate:     0.85,
	dateextract.KeywordNumericDate: 0.75,
	dateextract.MonthDateTitle:     0.7,
	dateextract.KeywordRelative:    0.6,
}

const defaultConfidence = 0.8

type dedupKeys map[string]struct{}

func (s *Scanner) extract(text, src string, seen dedupKeys) []model.Event {
	found := s.engine.Extract(text)
	now := s.now()

	out := make([]model.Event, 0, len(found))
	for _, ev := range found {
		key := dateextract.Key(ev.Title, ev.Date)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		conf, ok := ruleConfidence[ev.Rule]
		if !ok {
			conf = defaultConfidence
		}
		out = append(out, model.Event{
			Title:        ev.Title,
			Date:         ev.Date,
			Source:       src,
			Added:        now,
			AutoCaptured: true,
			Context:      contextFor(text, ev.Title),
			Confidence:   conf,
			Type:         dateextract.Category(ev.Title),
		})
	}
	return out
}

// contextFor returns the line the title was found on, or the start of the
// text when the title was rebuilt from a keyword.
func contextFor(text, title string) string {
	ctx := text
	lowerTitle := strings.ToLower(title)
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, lowerTitle) {
			ctx = line
			break
		}
		if i := strings.LastIndexByte(lowerTitle, ' '); i > 0 && strings.Contains(lower, lowerTitle[:i]) {
			ctx = line
			break
		}
	}
	return truncateRunes(strings.TrimSpace(ctx), maxContextRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
