package recur

import (
	"errors"
	"testing"
	"time"

	"todosched/internal/task"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func rule(p task.Pattern) task.RecurrenceRule {
	return task.RecurrenceRule{Pattern: p, End: task.End{Kind: task.EndNever}, AutoCreate: true}
}

func TestNextSimplePatterns(t *testing.T) {
	t.Parallel()

	anchor := date(2026, 3, 4, 9, 0) // Wednesday
	cases := []struct {
		name    string
		pattern task.Pattern
		want    time.Time
	}{
		{"daily", task.Pattern{Kind: task.PatternDaily}, date(2026, 3, 5, 9, 0)},
		{"weekly", task.Pattern{Kind: task.PatternWeekly}, date(2026, 3, 11, 9, 0)},
		{"every 4 years", task.Pattern{Kind: task.PatternInterval, Every: 4, Unit: task.UnitYears}, date(2030, 3, 4, 9, 0)},
		{"monthly", task.Pattern{Kind: task.PatternMonthly}, date(2026, 4, 4, 9, 0)},
		{"yearly", task.Pattern{Kind: task.PatternYearly}, date(2027, 3, 4, 9, 0)},
		{"every 3 days", task.Pattern{Kind: task.PatternInterval, Every: 3, Unit: task.UnitDays}, date(2026, 3, 7, 9, 0)},
		{"every 2 weeks", task.Pattern{Kind: task.PatternInterval, Every: 2, Unit: task.UnitWeeks}, date(2026, 3, 18, 9, 0)},
		{"every 6 months", task.Pattern{Kind: task.PatternInterval, Every: 6, Unit: task.UnitMonths}, date(2026, 9, 4, 9, 0)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Next(rule(tc.pattern), anchor)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("Next = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextMonthEndClamping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		anchor time.Time
		months int
		want   time.Time
	}{
		{"jan31 to feb28", date(2026, 1, 31, 12, 0), 1, date(2026, 2, 28, 12, 0)},
		{"jan31 to leap feb29", date(2028, 1, 31, 12, 0), 1, date(2028, 2, 29, 12, 0)},
		{"mar31 to apr30", date(2026, 3, 31, 12, 0), 1, date(2026, 4, 30, 12, 0)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := addMonthsClamped(tc.anchor, tc.months)
			if !got.Equal(tc.want) {
				t.Fatalf("addMonthsClamped = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextYearlyFeb29(t *testing.T) {
	t.Parallel()
	got, err := Next(rule(task.Pattern{Kind: task.PatternYearly}), date(2028, 2, 29, 8, 0))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := date(2029, 2, 28, 8, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextWeeklyAcrossYearBoundary(t *testing.T) {
	t.Parallel()
	got, err := Next(rule(task.Pattern{Kind: task.PatternWeekly}), date(2025, 12, 31, 17, 0))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := date(2026, 1, 7, 17, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextWeekdaySet(t *testing.T) {
	t.Parallel()

	p := task.Pattern{Kind: task.PatternWeekdays, Weekdays: []time.Weekday{time.Monday, time.Friday}}

	// Wednesday anchor moves to Friday.
	got, err := Next(rule(p), date(2026, 3, 4, 9, 0))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := date(2026, 3, 6, 9, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	// A Friday anchor never returns itself, it moves to Monday.
	got, err = Next(rule(p), got)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := date(2026, 3, 9, 9, 0); !got.Equal(want) {
		t.Fatalf("Next from friday = %v, want monday %v", got, want)
	}
}

func TestNextNthWeekday(t *testing.T) {
	t.Parallel()

	// 2nd Tuesday of March 2026 is the 10th.
	p := task.Pattern{Kind: task.PatternNthWeekday, Nth: 2, Weekday: time.Tuesday}
	got, err := Next(rule(p), date(2026, 3, 4, 9, 0))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := date(2026, 3, 10, 9, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	// Anchored past it, the rule rolls into April (2nd Tuesday = the 14th).
	got, err = Next(rule(p), got)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := date(2026, 4, 14, 9, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextTerminalAfterCount(t *testing.T) {
	t.Parallel()

	r := rule(task.Pattern{Kind: task.PatternDaily})
	r.End = task.End{Kind: task.EndAfterCount, Count: 2}
	r.Emitted = 2

	if _, err := Next(r, date(2026, 3, 4, 9, 0)); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}

func TestNextTerminalOnDate(t *testing.T) {
	t.Parallel()

	end := date(2026, 3, 5, 0, 0)
	r := rule(task.Pattern{Kind: task.PatternWeekly})
	r.End = task.End{Kind: task.EndOnDate, Date: &end}

	if _, err := Next(r, date(2026, 3, 4, 9, 0)); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := []struct {
		name string
		p    task.Pattern
		end  task.End
	}{
		{"daily", task.Pattern{Kind: task.PatternDaily}, task.End{Kind: task.EndNever}},
		{"weekday set", task.Pattern{Kind: task.PatternWeekdays, Weekdays: []time.Weekday{time.Monday}}, task.End{Kind: task.EndNever}},
		{"interval", task.Pattern{Kind: task.PatternInterval, Every: 2, Unit: task.UnitWeeks}, task.End{Kind: task.EndAfterCount, Count: 5}},
	}
	for _, tc := range ok {
		if err := Validate(tc.p, tc.end); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}

	bad := []struct {
		name string
		p    task.Pattern
		end  task.End
	}{
		{"unknown kind", task.Pattern{Kind: "fortnightly"}, task.End{Kind: task.EndNever}},
		{"empty weekday set", task.Pattern{Kind: task.PatternWeekdays}, task.End{Kind: task.EndNever}},
		{"zero interval", task.Pattern{Kind: task.PatternInterval, Unit: task.UnitDays}, task.End{Kind: task.EndNever}},
		{"bad unit", task.Pattern{Kind: task.PatternInterval, Every: 1, Unit: "fortnights"}, task.End{Kind: task.EndNever}},
		{"nth out of range", task.Pattern{Kind: task.PatternNthWeekday, Nth: 6, Weekday: time.Monday}, task.End{Kind: task.EndNever}},
		{"end date missing", task.Pattern{Kind: task.PatternDaily}, task.End{Kind: task.EndOnDate}},
		{"zero count", task.Pattern{Kind: task.PatternDaily}, task.End{Kind: task.EndAfterCount}},
	}
	for _, tc := range bad {
		if err := Validate(tc.p, tc.end); !errors.Is(err, ErrInvalidPattern) {
			t.Fatalf("%s: expected ErrInvalidPattern, got %v", tc.name, err)
		}
	}
}
