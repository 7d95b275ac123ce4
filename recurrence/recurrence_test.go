package recurrence

import (
	"testing"
	"time"

	"github.com/nyxcal/icaldav/ical"
)

func mustUTC(t *testing.T, layout, value string) time.Time {
	t.Helper()
	tm, err := time.Parse(layout, value)
	if err != nil {
		t.Fatalf("parsing %q: %v", value, err)
	}
	return tm
}

func TestExpandWeeklyWithRDateAndExDate(t *testing.T) {
	start := mustUTC(t, time.RFC3339, "2026-01-15T10:00:00Z")
	master := &ical.Event{
		UID:     "weekly@x",
		DTStart: ical.DateTime{Timestamp: start, IsUTC: true},
		RRule:   &ical.RRule{Freq: ical.Weekly, Interval: 1, Count: 3, WKST: ical.Monday},
		RDates: []ical.DateTime{
			{Timestamp: mustUTC(t, time.RFC3339, "2026-02-10T10:00:00Z"), IsUTC: true},
		},
		ExDates: []ical.DateTime{
			{Timestamp: mustUTC(t, time.RFC3339, "2026-01-22T10:00:00Z"), IsUTC: true},
		},
	}

	r := TimeRange{
		Start: mustUTC(t, time.RFC3339, "2026-01-01T00:00:00Z"),
		End:   mustUTC(t, time.RFC3339, "2026-03-01T00:00:00Z"),
	}

	got, err := Expand(master, r, nil, DefaultBudget())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []string{"20260115", "20260129", "20260210"}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].DTStart.DayCode() != w {
			t.Fatalf("occurrence %d: expected day-code %s, got %s", i, w, got[i].DTStart.DayCode())
		}
	}
}

func TestExpandLeapDayBymonthday29OnlyLeapYears(t *testing.T) {
	start := mustUTC(t, time.RFC3339, "2024-02-29T09:00:00Z")
	master := &ical.Event{
		UID:     "leap@x",
		DTStart: ical.DateTime{Timestamp: start, IsUTC: true, IsDate: true},
		RRule: &ical.RRule{
			Freq: ical.Yearly, Interval: 1, WKST: ical.Monday,
			ByMonth: []int{2}, ByMonthDay: []int{29},
		},
	}

	r := TimeRange{
		Start: mustUTC(t, time.RFC3339, "2024-01-01T00:00:00Z"),
		End:   mustUTC(t, time.RFC3339, "2032-01-01T00:00:00Z"),
	}

	got, err := Expand(master, r, nil, DefaultBudget())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	leapYears := map[string]bool{"2024": true, "2028": true}
	for _, ev := range got {
		year := ev.DTStart.DayCode()[:4]
		if !leapYears[year] {
			t.Fatalf("occurrence in non-leap year: %s", ev.DTStart.DayCode())
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected exactly 2024 and 2028, got %d: %+v", len(got), got)
	}
}

func TestExpandOverridePrecedence(t *testing.T) {
	start := mustUTC(t, time.RFC3339, "2026-01-15T10:00:00Z")
	master := &ical.Event{
		UID:     "ovr@x",
		DTStart: ical.DateTime{Timestamp: start, IsUTC: true},
		RRule:   &ical.RRule{Freq: ical.Weekly, Interval: 1, Count: 2, WKST: ical.Monday},
	}
	overrideDate := ical.DateTime{Timestamp: mustUTC(t, time.RFC3339, "2026-01-22T10:00:00Z"), IsUTC: true}
	override := &ical.Event{
		UID:          "ovr@x",
		Summary:      "Moved",
		DTStart:      ical.DateTime{Timestamp: mustUTC(t, time.RFC3339, "2026-01-22T15:00:00Z"), IsUTC: true},
		RecurrenceID: &overrideDate,
	}

	r := TimeRange{
		Start: mustUTC(t, time.RFC3339, "2026-01-01T00:00:00Z"),
		End:   mustUTC(t, time.RFC3339, "2026-02-01T00:00:00Z"),
	}

	got, err := Expand(master, r, []*ical.Event{override}, DefaultBudget())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(got))
	}
	if got[1].Summary != "Moved" || got[1].DTStart.Timestamp.Hour() != 15 {
		t.Fatalf("override did not take precedence: %+v", got[1])
	}
}

func TestExpandCountZeroOrNegativeYieldsNoOccurrences(t *testing.T) {
	start := mustUTC(t, time.RFC3339, "2026-01-15T10:00:00Z")
	master := &ical.Event{
		UID:     "zero@x",
		DTStart: ical.DateTime{Timestamp: start, IsUTC: true},
		RRule:   &ical.RRule{Freq: ical.Daily, Interval: 1, Count: -1, WKST: ical.Monday},
	}
	r := TimeRange{
		Start: mustUTC(t, time.RFC3339, "2026-01-01T00:00:00Z"),
		End:   mustUTC(t, time.RFC3339, "2026-02-01T00:00:00Z"),
	}

	got, err := Expand(master, r, nil, DefaultBudget())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected zero occurrences for non-positive COUNT, got %d", len(got))
	}
}

func TestExpandNonRecurringEventOverlap(t *testing.T) {
	start := mustUTC(t, time.RFC3339, "2026-01-15T10:00:00Z")
	end := mustUTC(t, time.RFC3339, "2026-01-15T11:00:00Z")
	dtend := ical.DateTime{Timestamp: end, IsUTC: true}
	master := &ical.Event{
		UID:     "single@x",
		DTStart: ical.DateTime{Timestamp: start, IsUTC: true},
		DTEnd:   &dtend,
	}

	inRange := TimeRange{Start: mustUTC(t, time.RFC3339, "2026-01-01T00:00:00Z"), End: mustUTC(t, time.RFC3339, "2026-02-01T00:00:00Z")}
	got, err := Expand(master, inRange, nil, DefaultBudget())
	if err != nil || len(got) != 1 {
		t.Fatalf("expected single occurrence in range, got %d, err=%v", len(got), err)
	}

	outOfRange := TimeRange{Start: mustUTC(t, time.RFC3339, "2027-01-01T00:00:00Z"), End: mustUTC(t, time.RFC3339, "2027-02-01T00:00:00Z")}
	got2, err := Expand(master, outOfRange, nil, DefaultBudget())
	if err != nil || len(got2) != 0 {
		t.Fatalf("expected no occurrences out of range, got %d, err=%v", len(got2), err)
	}
}

// TestExpandRDateOnlyMasterIncludesDTStart covers an RRULE-less,
// RDATE-only master (IsRecurring is true because RDates is non-empty):
// spec §4.2's Occurrences = (DTSTART ∪ RRULE ∪ RDATE) − EXDATE law
// requires DTSTART to appear in the result even though it is never one
// of the RDATE instants.
func TestExpandRDateOnlyMasterIncludesDTStart(t *testing.T) {
	start := mustUTC(t, time.RFC3339, "2026-03-01T10:00:00Z")
	master := &ical.Event{
		UID:     "rdate-only@x",
		DTStart: ical.DateTime{Timestamp: start, IsUTC: true},
		RDates: []ical.DateTime{
			{Timestamp: mustUTC(t, time.RFC3339, "2026-03-10T10:00:00Z"), IsUTC: true},
		},
	}

	r := TimeRange{
		Start: mustUTC(t, time.RFC3339, "2026-01-01T00:00:00Z"),
		End:   mustUTC(t, time.RFC3339, "2026-04-01T00:00:00Z"),
	}

	got, err := Expand(master, r, nil, DefaultBudget())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []string{"20260301", "20260310"}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].DTStart.DayCode() != w {
			t.Fatalf("occurrence %d: expected day-code %s, got %s", i, w, got[i].DTStart.DayCode())
		}
	}
}
