// Package recurrence expands an RRULE/RDATE/EXDATE recurrence set into
// concrete occurrence instances within a time window, applying
// per-instance RECURRENCE-ID overrides (spec §4.2).
package recurrence

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/ical"
)

// TimeRange is a half-open instant range [Start, End).
type TimeRange struct {
	Start, End time.Time
}

func (r TimeRange) overlaps(start, end time.Time) bool {
	return start.Before(r.End) && end.After(r.Start)
}

// Budget bounds a single Expand call so a pathological RRULE cannot hang
// or exhaust memory.
type Budget struct {
	MaxIterations int
	MaxDuration   time.Duration
}

// DefaultBudget matches spec §4.2's recommended defaults: a 10000-candidate
// cap and a few seconds of wall-clock time.
func DefaultBudget() Budget {
	return Budget{MaxIterations: 10000, MaxDuration: 5 * time.Second}
}

var weekdayMap = map[ical.Weekday]rrule.Weekday{
	ical.Monday:    rrule.MO,
	ical.Tuesday:   rrule.TU,
	ical.Wednesday: rrule.WE,
	ical.Thursday:  rrule.TH,
	ical.Friday:    rrule.FR,
	ical.Saturday:  rrule.SA,
	ical.Sunday:    rrule.SU,
}

var freqMap = map[ical.Frequency]rrule.Frequency{
	ical.Secondly: rrule.SECONDLY,
	ical.Minutely: rrule.MINUTELY,
	ical.Hourly:   rrule.HOURLY,
	ical.Daily:    rrule.DAILY,
	ical.Weekly:   rrule.WEEKLY,
	ical.Monthly:  rrule.MONTHLY,
	ical.Yearly:   rrule.YEARLY,
}

// buildOption translates the hand-rolled ical.RRule into rrule-go's
// option struct, preserving DTSTART's own time.Location so wall-clock
// time of day survives DST transitions (spec §4.2).
func buildOption(master *ical.Event) (*rrule.ROption, bool) {
	r := master.RRule
	if r == nil {
		return nil, false
	}
	freq, ok := freqMap[r.Freq]
	if !ok {
		freq = rrule.DAILY
	}
	opt := &rrule.ROption{
		Freq:     freq,
		Dtstart:  master.DTStart.Timestamp,
		Interval: r.Interval,
	}
	if opt.Interval <= 0 {
		opt.Interval = 1
	}
	if r.Count > 0 {
		opt.Count = r.Count
	} else if r.Count < 0 {
		return nil, false // explicit COUNT<=0: zero occurrences (spec §4.2, §9)
	}
	if r.Until != nil {
		opt.Until = r.Until.Timestamp
	}
	if wkst, ok := weekdayMap[r.WKST]; ok {
		opt.Wkst = wkst
	}
	opt.Bysecond = r.BySecond
	opt.Byminute = r.ByMinute
	opt.Byhour = r.ByHour
	for _, wd := range r.ByDay {
		rw, ok := weekdayMap[wd.Day]
		if !ok {
			continue
		}
		if wd.N != 0 {
			rw = rw.Nth(wd.N)
		}
		opt.Byweekday = append(opt.Byweekday, rw)
	}
	opt.Bymonthday = r.ByMonthDay
	opt.Byyearday = r.ByYearDay
	opt.Byweekno = r.ByWeekNo
	opt.Bymonth = r.ByMonth
	opt.Bysetpos = r.BySetPos
	return opt, true
}

func eventDuration(e *ical.Event) time.Duration {
	switch {
	case e.DTEnd != nil:
		return e.DTEnd.Timestamp.Sub(e.DTStart.Timestamp)
	case e.Duration != nil:
		return *e.Duration
	case e.IsAllDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// overrideIndex maps a RECURRENCE-ID's day-code to the override event
// (spec §4.2: "Override mapping construction"). Events without a
// recurrence_id are excluded.
func overrideIndex(overrides []*ical.Event) map[string]*ical.Event {
	idx := make(map[string]*ical.Event, len(overrides))
	for _, o := range overrides {
		if o.RecurrenceID == nil {
			continue
		}
		idx[o.RecurrenceID.DayCode()] = o
	}
	return idx
}

// Expand computes Occurrences = (DTSTART ∪ RRULE ∪ RDATE) − EXDATE for
// master, replacing any instant that has a matching override, and
// returns the result sorted by start time (spec §4.2 algorithm).
//
// overrides holds sibling VEVENTs sharing master.UID whose RECURRENCE-ID
// is set; budget bounds the candidate search.
func Expand(master *ical.Event, r TimeRange, overrides []*ical.Event, budget Budget) ([]*ical.Event, error) {
	if budget.MaxIterations <= 0 {
		budget = DefaultBudget()
	}

	if !master.IsRecurring() {
		dur := eventDuration(master)
		if r.overlaps(master.DTStart.Timestamp, master.DTStart.Timestamp.Add(dur)) {
			return []*ical.Event{master}, nil
		}
		return nil, nil
	}

	duration := eventDuration(master)
	deadline := time.Now().Add(budget.MaxDuration)

	seen := make(map[string]bool)
	var candidates []time.Time

	// DTSTART is unioned in unconditionally per spec §4.2's
	// Occurrences = (DTSTART ∪ RRULE ∪ RDATE) − EXDATE law, even when
	// RRule is nil and the recurrence set is driven by RDATE alone. The
	// one exception is an explicit non-positive COUNT (spec §4.2/§9's
	// "COUNT ≤ 0 produces zero occurrences" coercion), which zeroes the
	// whole recurrence set rather than just the RRULE's contribution.
	explicitZeroCount := master.RRule != nil && master.RRule.Count < 0
	if !explicitZeroCount {
		seen[master.DTStart.DayCode()] = true
		candidates = append(candidates, master.DTStart.Timestamp)
	}

	if opt, ok := buildOption(master); ok {
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, &icaldav.ParseError{Message: "invalid RRULE for expansion: " + err.Error()}
		}
		windowStart := r.Start.Add(-duration)
		all := rule.Between(windowStart, r.End, true)
		for i, t := range all {
			if i >= budget.MaxIterations {
				break
			}
			if time.Now().After(deadline) {
				break
			}
			day := ical.DateTime{Timestamp: t}.DayCode()
			if seen[day] {
				continue
			}
			seen[day] = true
			candidates = append(candidates, t)
		}
	}

	for _, rd := range master.RDates {
		day := rd.DayCode()
		if seen[day] {
			continue
		}
		seen[day] = true
		candidates = append(candidates, rd.Timestamp)
	}

	exSet := make(map[string]bool, len(master.ExDates))
	for _, ex := range master.ExDates {
		exSet[ex.DayCode()] = true
	}

	overrideIdx := overrideIndex(overrides)

	var result []*ical.Event
	for _, instant := range candidates {
		day := ical.DateTime{Timestamp: instant}.DayCode()
		if exSet[day] {
			continue
		}
		end := instant.Add(duration)
		if !r.overlaps(instant, end) {
			continue
		}
		if ov, ok := overrideIdx[day]; ok {
			result = append(result, ov)
			continue
		}
		result = append(result, synthesize(master, instant, duration))
	}

	sortByStart(result)
	return result, nil
}

func synthesize(master *ical.Event, instant time.Time, duration time.Duration) *ical.Event {
	clone := *master
	dt := ical.DateTime{
		Timestamp: instant,
		TZID:      master.DTStart.TZID,
		IsUTC:     master.DTStart.IsUTC,
		IsDate:    master.DTStart.IsDate,
	}
	clone.DTStart = dt
	if master.DTEnd != nil {
		end := dt
		end.Timestamp = instant.Add(duration)
		clone.DTEnd = &end
	}
	recID := dt
	clone.RecurrenceID = &recID
	clone.RRule = nil
	clone.RDates = nil
	clone.ExDates = nil
	clone.ImportID = master.UID + "|RECID|" + dt.DayCode()
	return &clone
}

func sortByStart(events []*ical.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].DTStart.Timestamp.Before(events[j].DTStart.Timestamp)
	})
}
