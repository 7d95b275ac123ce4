package ical

import (
	"fmt"
	"strconv"
	"strings"
)

// parseRRule parses an RFC 5545 §3.3.10 RRULE value into an RRule,
// coercing invalid parameters gracefully rather than rejecting them
// (spec §4.2, §9 Open Questions: INTERVAL<=0 -> 1, COUNT<=0 -> zero
// occurrences is left to the recurrence engine, UNTIL<DTSTART is left to
// the recurrence engine, empty BYDAY -> caller default).
func parseRRule(value string) (*RRule, error) {
	r := &RRule{Interval: 1, WKST: Monday}
	for _, part := range strings.Split(value, ";") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		switch key {
		case "FREQ":
			r.Freq = Frequency(strings.ToUpper(val))
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				n = 1
			}
			r.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				// An explicit non-positive COUNT means zero occurrences
				// (spec §4.2, §9), distinct from COUNT being absent
				// entirely (Count == 0). -1 is the "explicit zero" sentinel.
				n = -1
			}
			r.Count = n
		case "UNTIL":
			dt, err := parseDateTimeValue(val, nil)
			if err == nil {
				r.Until = &dt
			}
		case "BYMONTH":
			r.ByMonth = parseIntList(val)
		case "BYWEEKNO":
			r.ByWeekNo = parseIntList(val)
		case "BYYEARDAY":
			r.ByYearDay = parseIntList(val)
		case "BYMONTHDAY":
			r.ByMonthDay = parseIntList(val)
		case "BYDAY":
			r.ByDay = parseWeekdayList(val)
		case "BYHOUR":
			r.ByHour = parseIntList(val)
		case "BYMINUTE":
			r.ByMinute = parseIntList(val)
		case "BYSECOND":
			r.BySecond = parseIntList(val)
		case "BYSETPOS":
			r.BySetPos = parseIntList(val)
		case "WKST":
			r.WKST = Weekday(strings.ToUpper(val))
		}
	}
	if r.Interval <= 0 {
		r.Interval = 1
	}
	if r.WKST == "" {
		r.WKST = Monday
	}
	return r, nil
}

func parseIntList(s string) []int {
	var out []int
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func parseWeekdayList(s string) []WeekdayNum {
	var out []WeekdayNum
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if len(v) < 2 {
			continue
		}
		day := v[len(v)-2:]
		ordStr := v[:len(v)-2]
		n := 0
		if ordStr != "" {
			if parsed, err := strconv.Atoi(ordStr); err == nil {
				n = parsed
			}
		}
		out = append(out, WeekdayNum{N: n, Day: Weekday(strings.ToUpper(day))})
	}
	return out
}

// formatRRule regenerates the RRULE value string for r.
func formatRRule(r *RRule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FREQ=%s", r.Freq)
	if r.Interval > 1 {
		fmt.Fprintf(&b, ";INTERVAL=%d", r.Interval)
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, ";COUNT=%d", r.Count)
	} else if r.Count < 0 {
		b.WriteString(";COUNT=0")
	}
	if r.Until != nil {
		v, _ := formatDateTime(*r.Until)
		fmt.Fprintf(&b, ";UNTIL=%s", v)
	}
	writeIntList(&b, "BYSECOND", r.BySecond)
	writeIntList(&b, "BYMINUTE", r.ByMinute)
	writeIntList(&b, "BYHOUR", r.ByHour)
	if len(r.ByDay) > 0 {
		b.WriteString(";BYDAY=")
		for i, wd := range r.ByDay {
			if i > 0 {
				b.WriteByte(',')
			}
			if wd.N != 0 {
				fmt.Fprintf(&b, "%d", wd.N)
			}
			b.WriteString(string(wd.Day))
		}
	}
	writeIntList(&b, "BYMONTHDAY", r.ByMonthDay)
	writeIntList(&b, "BYYEARDAY", r.ByYearDay)
	writeIntList(&b, "BYWEEKNO", r.ByWeekNo)
	writeIntList(&b, "BYMONTH", r.ByMonth)
	writeIntList(&b, "BYSETPOS", r.BySetPos)
	if r.WKST != "" && r.WKST != Monday {
		fmt.Fprintf(&b, ";WKST=%s", r.WKST)
	}
	return b.String()
}

func writeIntList(b *strings.Builder, name string, vals []int) {
	if len(vals) == 0 {
		return
	}
	fmt.Fprintf(b, ";%s=", name)
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(b, "%d", v)
	}
}
