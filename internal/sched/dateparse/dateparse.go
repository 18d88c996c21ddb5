// Package dateparse normalizes due-date text into instants.
//
// It accepts ISO 8601 dates/date-times plus a small fixed grammar of relative
// expressions. Ambiguous input fails with a correction hint instead of
// guessing; dates in the past are flagged, not rejected, so callers can warn
// without blocking intentional backdating.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseError reports unparseable date text together with a hint the caller can
// surface to the user. It is never retried automatically.
type ParseError struct {
	Raw        string
	Suggestion string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Raw, e.Suggestion)
}

// Result is a normalized instant plus a non-fatal backdating flag.
type Result struct {
	At time.Time

	// PastDate is set when the resolved instant is strictly before "now".
	PastDate bool
}

// endOfDay is the default time-of-day when the expression has no time component.
const endOfDayHour, endOfDayMin, endOfDaySec = 23, 59, 59

var (
	reInDays      = regexp.MustCompile(`^in\s+(\d+)\s+days?$`)
	reNextWeekday = regexp.MustCompile(`^next\s+([a-z]+)$`)
	reWeekdayAt   = regexp.MustCompile(`^([a-z]+)\s+at\s+(\d{1,2}):(\d{2})$`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// absoluteLayouts are tried in order for non-relative input.
// Layouts without a time component default to 23:59:59.
var absoluteLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{layout: time.RFC3339, dateOnly: false},
	{layout: "2006-01-02T15:04:05", dateOnly: false},
	{layout: "2006-01-02T15:04", dateOnly: false},
	{layout: "2006-01-02 15:04:05", dateOnly: false},
	{layout: "2006-01-02 15:04", dateOnly: false},
	{layout: "2006-01-02", dateOnly: true},
}

// Parse resolves text against now. The result is deterministic given now and
// idempotent under re-parsing its own ISO output.
func Parse(text string, now time.Time) (Result, error) {
	raw := text
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return Result{}, &ParseError{Raw: raw, Suggestion: "provide a date like 2025-12-31, 'tomorrow' or 'in 3 days'"}
	}
	loc := now.Location()

	// Absolute forms first: relative words never look like dates.
	for _, l := range absoluteLayouts {
		// Keep the original casing for layouts with a zone ("Z" matters).
		t, err := time.ParseInLocation(l.layout, strings.TrimSpace(text), loc)
		if err != nil {
			continue
		}
		if l.dateOnly {
			t = atEndOfDay(t)
		}
		return resultFor(t, now), nil
	}

	switch s {
	case "today":
		return resultFor(atEndOfDay(now), now), nil
	case "tomorrow":
		return resultFor(atEndOfDay(now.AddDate(0, 0, 1)), now), nil
	}

	if m := reInDays.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return Result{}, &ParseError{Raw: raw, Suggestion: "use 'in N days' with a small positive N"}
		}
		return resultFor(atEndOfDay(now.AddDate(0, 0, n)), now), nil
	}

	if m := reNextWeekday.FindStringSubmatch(s); m != nil {
		wd, ok := weekdays[m[1]]
		if !ok {
			return Result{}, &ParseError{Raw: raw, Suggestion: fmt.Sprintf("unknown weekday %q; use monday..sunday", m[1])}
		}
		// "next monday" is always strictly after today, even when today is monday.
		days := int(wd-now.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		return resultFor(atEndOfDay(now.AddDate(0, 0, days)), now), nil
	}

	if m := reWeekdayAt.FindStringSubmatch(s); m != nil {
		wd, ok := weekdays[m[1]]
		if !ok {
			return Result{}, &ParseError{Raw: raw, Suggestion: fmt.Sprintf("unknown weekday %q; use monday..sunday", m[1])}
		}
		hh, _ := strconv.Atoi(m[2])
		mm, _ := strconv.Atoi(m[3])
		if hh > 23 || mm > 59 {
			return Result{}, &ParseError{Raw: raw, Suggestion: "time must be HH:MM in 24-hour form"}
		}
		// Nearest matching weekday, today included; a past time today comes back
		// flagged rather than skipped a week ahead.
		days := int(wd-now.Weekday()+7) % 7
		d := now.AddDate(0, 0, days)
		t := time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, loc)
		return resultFor(t, now), nil
	}

	return Result{}, &ParseError{
		Raw:        raw,
		Suggestion: "use an ISO date (2025-12-31 or 2025-12-31T15:04), 'today', 'tomorrow', 'in N days', 'next monday' or 'monday at 15:04'",
	}
}

func atEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), endOfDayHour, endOfDayMin, endOfDaySec, 0, t.Location())
}

func resultFor(t, now time.Time) Result {
	return Result{At: t, PastDate: t.Before(now)}
}
