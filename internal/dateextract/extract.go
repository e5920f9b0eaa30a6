package dateextract

import (
	"errors"
	"fmt"
	"slices"
	"time"

	appLog "syllabuscal/internal/log"
)

// Engine extracts dated events from text. An Engine is immutable after New
// and safe for concurrent use.
type Engine struct {
	rules    []RuleKind
	policies map[RuleKind]Policy
	order    AmbiguousOrder
	now      func() time.Time
	loc      *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow sets the clock used for year inference and relative dates.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone extracted wall times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithPolicy overrides the policy of a single rule.
func WithPolicy(kind RuleKind, p Policy) Option {
	return func(e *Engine) {
		e.policies[kind] = p
	}
}

// WithAmbiguousOrder sets how numeric dates with two month-sized leading
// components are read.
func WithAmbiguousOrder(o AmbiguousOrder) Option {
	return func(e *Engine) {
		e.order = o
	}
}

// WithRules restricts the engine to the given rules, in the given order.
func WithRules(kinds ...RuleKind) Option {
	return func(e *Engine) {
		e.rules = slices.Clone(kinds)
	}
}

// New builds an Engine running the full rule catalog with default policies.
func New(opts ...Option) *Engine {
	e := &Engine{
		rules:    AllRules(),
		policies: make(map[RuleKind]Policy),
		order:    SmallerFirst,
		now:      time.Now,
		loc:      time.Local,
	}
	for _, k := range AllRules() {
		e.policies[k] = DefaultPolicy(k)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New()

// Extract runs the default engine over text.
func Extract(text string) []Event {
	return defaultEngine.Extract(text)
}

// Extract returns the events found in text, deduplicated by title and
// instant and sorted ascending by date. Matches that fail to resolve are
// skipped; Extract never fails and returns an empty slice when nothing
// matched.
func (e *Engine) Extract(text string) []Event {
	now := e.now()
	seen := make(dedup)
	events := make([]Event, 0)

	for _, kind := range e.rules {
		re := patternFor(kind)
		if re == nil {
			continue
		}
		rc := ruleContext{
			policy: e.policies[kind],
			order:  e.order,
			now:    now,
			loc:    e.loc,
		}

		for _, m := range re.FindAllStringSubmatch(text, -1) {
			ev, err := safeApply(kind, m, rc)
			if err != nil {
				appLog.Debug("dateextract: match discarded", "rule", kind, "match", m[0], "reason", err)
				continue
			}
			if seen.add(ev) {
				events = append(events, ev)
			}
		}
	}

	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Date.Compare(b.Date)
	})
	return events
}

var errRulePanic = errors.New("dateextract: rule handler panicked")

// safeApply confines a handler fault to the one match that caused it.
func safeApply(kind RuleKind, m []string, rc ruleContext) (ev Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errRulePanic, r)
			appLog.Error("dateextract: recovered from rule failure", err, "rule", kind, "match", m[0])
		}
	}()
	return applyRule(kind, m, rc)
}
