package ical

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nyxcal/icaldav"
)

const (
	dateLayout         = "20060102"
	dateTimeLayout     = "20060102T150405"
	dateTimeUTCLayout  = "20060102T150405Z"
)

// parseDateTimeValue parses a single DTSTART/DTEND/EXDATE/RDATE/
// RECURRENCE-ID value given its parameters (spec §4.1: TZID=, VALUE=DATE
// determine the resulting shape).
func parseDateTimeValue(value string, params map[string][]string) (DateTime, error) {
	isDate := false
	if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}
	tzid := ""
	if vs, ok := params["TZID"]; ok && len(vs) > 0 {
		tzid = vs[0]
	}

	value = strings.TrimSpace(value)
	switch {
	case isDate || len(value) == len(dateLayout):
		t, err := time.ParseInLocation(dateLayout, value, time.UTC)
		if err != nil {
			return DateTime{}, &icaldav.ParseError{Message: "invalid DATE value", Snippet: value}
		}
		return DateTime{Timestamp: t, IsDate: true, IsUTC: true}, nil
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse(dateTimeUTCLayout, value)
		if err != nil {
			return DateTime{}, &icaldav.ParseError{Message: "invalid UTC DATE-TIME value", Snippet: value}
		}
		return DateTime{Timestamp: t, IsUTC: true}, nil
	case tzid != "":
		loc, err := time.LoadLocation(tzid)
		if err != nil {
			loc = time.UTC
		}
		t, err := time.ParseInLocation(dateTimeLayout, value, loc)
		if err != nil {
			return DateTime{}, &icaldav.ParseError{Message: "invalid DATE-TIME value", Snippet: value}
		}
		return DateTime{Timestamp: t, TZID: tzid}, nil
	default:
		t, err := time.ParseInLocation(dateTimeLayout, value, time.Local)
		if err != nil {
			return DateTime{}, &icaldav.ParseError{Message: "invalid floating DATE-TIME value", Snippet: value}
		}
		return DateTime{Timestamp: t}, nil
	}
}

// formatDateTime regenerates the exact wire form for d, plus any
// parameters that must accompany it (TZID=, VALUE=DATE).
func formatDateTime(d DateTime) (value string, params map[string]string) {
	switch {
	case d.IsDate:
		return d.Timestamp.UTC().Format(dateLayout), map[string]string{"VALUE": "DATE"}
	case d.IsUTC:
		return d.Timestamp.UTC().Format(dateTimeUTCLayout), nil
	case d.TZID != "":
		return d.Timestamp.Format(dateTimeLayout), map[string]string{"TZID": d.TZID}
	default:
		return d.Timestamp.Format(dateTimeLayout), nil
	}
}

// parseDateTimeList parses a comma-separated EXDATE/RDATE value. A
// VALUE=PERIOD property is skipped as a whole: no values are returned
// and skippedPeriod is true, so the caller can record a warning.
func parseDateTimeList(value string, params map[string][]string) (out []DateTime, skippedPeriod bool) {
	if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "PERIOD") {
		return nil, true
	}
	for _, part := range splitUnescaped(value, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dt, err := parseDateTimeValue(part, params)
		if err != nil {
			continue
		}
		out = append(out, dt)
	}
	return out, false
}

// parseDuration parses an RFC 5545 §3.3.6 DURATION value, e.g.
// "P1DT2H3M4S", "-P2W".
func parseDuration(value string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, &icaldav.ParseError{Message: "empty DURATION value"}
	}
	neg := false
	if s[0] == '+' {
		s = s[1:]
	} else if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) == 0 || s[0] != 'P' {
		return 0, &icaldav.ParseError{Message: "invalid DURATION value", Snippet: value}
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	numStart := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 'T':
			inTime = true
			numStart = i + 1
		case c >= '0' && c <= '9':
			continue
		case c == 'W' || c == 'D' || c == 'H' || c == 'M' || c == 'S':
			n, err := strconv.Atoi(s[numStart:i])
			if err != nil {
				return 0, &icaldav.ParseError{Message: "invalid DURATION component", Snippet: value}
			}
			switch c {
			case 'W':
				total += time.Duration(n) * 7 * 24 * time.Hour
			case 'D':
				total += time.Duration(n) * 24 * time.Hour
			case 'H':
				total += time.Duration(n) * time.Hour
			case 'M':
				if inTime {
					total += time.Duration(n) * time.Minute
				} else {
					// A bare "M" before "T" cannot occur in RFC 5545 durations
					// (months aren't valid here); treat defensively as minutes.
					total += time.Duration(n) * time.Minute
				}
			case 'S':
				total += time.Duration(n) * time.Second
			}
			numStart = i + 1
		default:
			return 0, &icaldav.ParseError{Message: "invalid DURATION value", Snippet: value}
		}
	}
	if neg {
		total = -total
	}
	return total, nil
}

// formatDuration regenerates an RFC 5545 DURATION value.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	neg := d < 0
	if neg {
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	secs := d / time.Second

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || mins > 0 || secs > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if mins > 0 {
			fmt.Fprintf(&b, "%dM", mins)
		}
		if secs > 0 {
			fmt.Fprintf(&b, "%dS", secs)
		}
	}
	return b.String()
}
