// Package cronexpr implements the six-field cron calendar (spec §4.2/§4.7):
// second, minute, hour, day-of-month, month, day-of-week, with wildcard,
// list, range, step, and a single `?` in exactly one of day-of-month or
// day-of-week. This is a from-scratch evaluator rather than an adaptation
// of robfig/cron/v3: that library's parser has no `?` wildcard at all (it
// treats dom/dow as always-AND, not the OR-with-one-side-wildcarded rule
// the spec requires), so wrapping it would mean reimplementing the exact
// same field logic around a parser that actively gets in the way. The
// six-field split, validation ranges, and list/range/step grammar below
// follow the same shape robfig/cron uses internally, to keep the evaluator
// idiomatic for readers already familiar with that library.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed, validated cron expression ready for repeated
// NextFire calls.
type Schedule struct {
	seconds  fieldSet
	minutes  fieldSet
	hours    fieldSet
	dom      fieldSet
	domWild  bool
	months   fieldSet
	dow      fieldSet
	dowWild  bool
}

type fieldSet map[int]bool

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fields = []fieldSpec{
	{"second", 0, 59},
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Validate reports every problem with expr without returning a usable
// Schedule, for boot-time and UI validation (spec's S4 scenario: a bad
// second field's error mentions "second").
func Validate(expr string) []string {
	_, errs := parse(expr)
	return errs
}

// Parse validates expr and returns a Schedule, or every validation error
// joined into one error value.
func Parse(expr string) (*Schedule, error) {
	sched, errs := parse(expr)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid cron expression %q: %s", expr, strings.Join(errs, "; "))
	}
	return sched, nil
}

func parse(expr string) (*Schedule, []string) {
	parts := strings.Fields(expr)
	if len(parts) != 6 {
		return nil, []string{fmt.Sprintf("expected 6 fields (second minute hour day-of-month month day-of-week), got %d", len(parts))}
	}

	var errs []string
	sched := &Schedule{}
	sets := make([]fieldSet, 6)
	wild := make([]bool, 6)

	domQuestion := parts[3] == "?"
	dowQuestion := parts[5] == "?"
	if domQuestion && dowQuestion {
		errs = append(errs, "at most one of day-of-month and day-of-week may be '?'")
	}

	for i, spec := range fields {
		raw := parts[i]
		if raw == "?" {
			if i != 3 && i != 5 {
				errs = append(errs, fmt.Sprintf("'?' is only allowed in day-of-month or day-of-week, found in %s", spec.name))
				continue
			}
			wild[i] = true
			sets[i] = fieldSet{}
			continue
		}
		set, fieldErrs := parseField(raw, spec)
		errs = append(errs, fieldErrs...)
		if raw == "*" {
			wild[i] = true
		}
		sets[i] = set
	}

	if len(errs) > 0 {
		return nil, errs
	}

	sched.seconds = sets[0]
	sched.minutes = sets[1]
	sched.hours = sets[2]
	sched.dom = sets[3]
	sched.domWild = wild[3]
	sched.months = sets[4]
	sched.dow = sets[5]
	sched.dowWild = wild[5]

	return sched, nil
}

func parseField(raw string, spec fieldSpec) (fieldSet, []string) {
	set := fieldSet{}
	var errs []string

	for _, term := range strings.Split(raw, ",") {
		if term == "" {
			errs = append(errs, fmt.Sprintf("%s: empty list entry", spec.name))
			continue
		}

		step := 1
		base := term
		if idx := strings.IndexByte(term, '/'); idx >= 0 {
			base = term[:idx]
			stepStr := term[idx+1:]
			s, err := strconv.Atoi(stepStr)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: non-numeric step %q", spec.name, stepStr))
				continue
			}
			if s <= 0 {
				errs = append(errs, fmt.Sprintf("%s: step must be positive, got %d", spec.name, s))
				continue
			}
			step = s
		}

		var lo, hi int
		switch {
		case base == "*":
			lo, hi = spec.min, spec.max
		case strings.Contains(base, "-"):
			boundParts := strings.SplitN(base, "-", 2)
			l, errL := strconv.Atoi(boundParts[0])
			h, errH := strconv.Atoi(boundParts[1])
			if errL != nil || errH != nil {
				errs = append(errs, fmt.Sprintf("%s: non-numeric range %q", spec.name, base))
				continue
			}
			if l > h {
				errs = append(errs, fmt.Sprintf("%s: reversed range %q", spec.name, base))
				continue
			}
			lo, hi = l, h
		default:
			v, err := strconv.Atoi(base)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: non-numeric value %q", spec.name, base))
				continue
			}
			lo, hi = v, v
		}

		if lo < spec.min || hi > spec.max {
			errs = append(errs, fmt.Sprintf("%s: value out of range [%d-%d]: %q", spec.name, spec.min, spec.max, base))
			continue
		}

		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}

	return set, errs
}

// NextFire returns the earliest instant strictly after t, in t's location,
// that satisfies every field (spec invariant 6). loc overrides the time
// zone the calendar walk runs in; pass nil to keep t's own location.
func (s *Schedule) NextFire(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	// Start one second after t and truncate to the second boundary, then
	// walk forward a minute, hour, day, month at a time until every field
	// matches — a bounded search since cron fields repeat at most yearly.
	t = t.Add(time.Second).Truncate(time.Second)

	limit := t.AddDate(5, 0, 0)
	for t.Before(limit) {
		if !s.months[int(t.Month())] {
			t = firstOfNextMonth(t)
			continue
		}
		if !s.matchesDay(t) {
			t = startOfNextDay(t)
			continue
		}
		if !s.hours[t.Hour()] {
			t = startOfNextHour(t)
			continue
		}
		if !s.minutes[t.Minute()] {
			t = startOfNextMinute(t)
			continue
		}
		if !s.seconds[t.Second()] {
			t = t.Add(time.Second)
			continue
		}
		return t
	}
	return time.Time{}
}

// matchesDay applies the dom/dow OR-with-wildcard-side rule: if one side is
// '?' or both unconstrained, only the other side's set matters; if both are
// constrained, either matching is sufficient (standard cron semantics).
func (s *Schedule) matchesDay(t time.Time) bool {
	domMatch := s.dom[t.Day()]
	dowMatch := s.dow[int(t.Weekday())]

	switch {
	case s.domWild && s.dowWild:
		return true
	case s.domWild:
		return dowMatch
	case s.dowWild:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

func firstOfNextMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
}

func startOfNextDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, t.Location())
}

func startOfNextHour(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, t.Hour()+1, 0, 0, 0, t.Location())
}

func startOfNextMinute(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, t.Hour(), t.Minute()+1, 0, 0, t.Location())
}
