// Package recur computes next occurrence dates for recurrence rules and
// materializes successor tasks from recurring templates.
package recur

import (
	"errors"
	"fmt"
	"time"

	"todosched/internal/task"
)

var (
	// ErrTerminal means the rule's end condition is met; no further occurrences.
	ErrTerminal = errors.New("recurrence rule is terminal")

	// ErrInvalidPattern rejects malformed patterns before they reach a rule.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")
)

// Validate checks a pattern and end condition before they are attached to a task.
func Validate(p task.Pattern, end task.End) error {
	switch p.Kind {
	case task.PatternDaily, task.PatternWeekly, task.PatternMonthly, task.PatternYearly:
	case task.PatternWeekdays:
		if len(p.Weekdays) == 0 {
			return fmt.Errorf("%w: weekday set is empty", ErrInvalidPattern)
		}
		for _, wd := range p.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("%w: bad weekday %d", ErrInvalidPattern, wd)
			}
		}
	case task.PatternInterval:
		if p.Every < 1 {
			return fmt.Errorf("%w: interval must be >= 1", ErrInvalidPattern)
		}
		switch p.Unit {
		case task.UnitDays, task.UnitWeeks, task.UnitMonths, task.UnitYears:
		default:
			return fmt.Errorf("%w: bad interval unit %q", ErrInvalidPattern, p.Unit)
		}
	case task.PatternNthWeekday:
		if p.Nth < 1 || p.Nth > 5 {
			return fmt.Errorf("%w: nth must be 1..5", ErrInvalidPattern)
		}
		if p.Weekday < time.Sunday || p.Weekday > time.Saturday {
			return fmt.Errorf("%w: bad weekday %d", ErrInvalidPattern, p.Weekday)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPattern, p.Kind)
	}

	switch end.Kind {
	case task.EndNever:
	case task.EndOnDate:
		if end.Date == nil {
			return fmt.Errorf("%w: end date missing", ErrInvalidPattern)
		}
	case task.EndAfterCount:
		if end.Count < 1 {
			return fmt.Errorf("%w: end count must be >= 1", ErrInvalidPattern)
		}
	default:
		return fmt.Errorf("%w: unknown end kind %q", ErrInvalidPattern, end.Kind)
	}
	return nil
}

// Next returns the occurrence strictly after anchor, or ErrTerminal once the
// rule's end condition is met. The count check runs before any date math; the
// end-date check runs against the computed candidate.
func Next(rule task.RecurrenceRule, anchor time.Time) (time.Time, error) {
	if rule.End.Kind == task.EndAfterCount && rule.Emitted >= rule.End.Count {
		return time.Time{}, ErrTerminal
	}

	candidate, err := advance(rule.Pattern, anchor)
	if err != nil {
		return time.Time{}, err
	}
	if rule.Terminal(candidate) {
		return time.Time{}, ErrTerminal
	}
	return candidate, nil
}

func advance(p task.Pattern, anchor time.Time) (time.Time, error) {
	switch p.Kind {
	case task.PatternDaily:
		return anchor.AddDate(0, 0, 1), nil
	case task.PatternWeekly:
		return anchor.AddDate(0, 0, 7), nil
	case task.PatternWeekdays:
		return nextWeekdayInSet(anchor, p.Weekdays), nil
	case task.PatternMonthly:
		return addMonthsClamped(anchor, 1), nil
	case task.PatternYearly:
		return addMonthsClamped(anchor, 12), nil
	case task.PatternInterval:
		switch p.Unit {
		case task.UnitDays:
			return anchor.AddDate(0, 0, p.Every), nil
		case task.UnitWeeks:
			return anchor.AddDate(0, 0, 7*p.Every), nil
		case task.UnitMonths:
			return addMonthsClamped(anchor, p.Every), nil
		case task.UnitYears:
			return addMonthsClamped(anchor, 12*p.Every), nil
		}
	case task.PatternNthWeekday:
		return nextNthWeekday(anchor, p.Nth, p.Weekday), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPattern, p.Kind)
}

// nextWeekdayInSet advances to the next date (strictly after anchor) whose
// weekday is in the set. The anchor's own weekday is skipped even when it
// matches.
func nextWeekdayInSet(anchor time.Time, set []time.Weekday) time.Time {
	in := map[time.Weekday]bool{}
	for _, wd := range set {
		in[wd] = true
	}
	for d := 1; d <= 7; d++ {
		c := anchor.AddDate(0, 0, d)
		if in[c.Weekday()] {
			return c
		}
	}
	// Unreachable for a validated, non-empty set.
	return anchor.AddDate(0, 0, 7)
}

// addMonthsClamped steps n months keeping the day-of-month, clamping to the
// last valid day of the target month (Jan 31 -> Feb 28/29, Feb 29 -> Feb 28 on
// non-leap years). It avoids time.AddDate's month-overflow normalization.
func addMonthsClamped(anchor time.Time, n int) time.Time {
	y, m, d := anchor.Date()
	month := int(m) - 1 + n
	y += month / 12
	month = month % 12
	if month < 0 {
		month += 12
		y--
	}
	target := time.Month(month + 1)
	if last := daysIn(y, target); d > last {
		d = last
	}
	return time.Date(y, target, d,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

func daysIn(year int, m time.Month) int {
	// Day 0 of the next month is the last day of m.
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nextNthWeekday finds the next "Nth <weekday> of the month" strictly after
// anchor. A month without an Nth occurrence clamps to its last matching
// weekday, consistent with the day-of-month clamp.
func nextNthWeekday(anchor time.Time, nth int, wd time.Weekday) time.Time {
	y, m, _ := anchor.Date()
	for i := 0; i <= 13; i++ {
		c := nthWeekdayOf(y, m, nth, wd, anchor)
		if c.After(anchor) {
			return c
		}
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	// Unreachable: every month has a first..fifth-or-clamped weekday.
	return anchor.AddDate(0, 1, 0)
}

func nthWeekdayOf(year int, m time.Month, nth int, wd time.Weekday, tod time.Time) time.Time {
	first := time.Date(year, m, 1, tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), tod.Location())
	offset := int(wd-first.Weekday()+7) % 7
	day := 1 + offset + 7*(nth-1)
	if last := daysIn(year, m); day > last {
		day -= 7
	}
	return time.Date(year, m, day, tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), tod.Location())
}
