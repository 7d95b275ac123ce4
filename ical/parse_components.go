package ical

import (
	"strings"
	"time"

	"github.com/nyxcal/icaldav"
)

var freeBusyKnownProps = map[string]bool{
	"UID": true, "DTSTART": true, "DTEND": true, "ORGANIZER": true,
	"ATTENDEE": true, "FREEBUSY": true, "DTSTAMP": true, "URL": true,
}

var eventKnownProps = map[string]bool{
	"UID": true, "SUMMARY": true, "DESCRIPTION": true, "LOCATION": true,
	"DTSTART": true, "DTEND": true, "DURATION": true, "STATUS": true,
	"CLASS": true, "TRANSP": true, "SEQUENCE": true, "RRULE": true,
	"RDATE": true, "EXDATE": true, "RECURRENCE-ID": true, "CATEGORIES": true,
	"ORGANIZER": true, "ATTENDEE": true, "COLOR": true, "DTSTAMP": true,
	"LAST-MODIFIED": true, "CREATED": true, "URL": true,
}

var todoKnownProps = map[string]bool{
	"UID": true, "SUMMARY": true, "DESCRIPTION": true, "DTSTART": true,
	"DUE": true, "DURATION": true, "STATUS": true, "CLASS": true,
	"PERCENT-COMPLETE": true, "COMPLETED": true, "SEQUENCE": true,
	"RRULE": true, "RDATE": true, "EXDATE": true, "RECURRENCE-ID": true,
	"CATEGORIES": true, "ORGANIZER": true, "ATTENDEE": true,
	"DTSTAMP": true, "LAST-MODIFIED": true, "CREATED": true, "URL": true,
}

var journalKnownProps = map[string]bool{
	"UID": true, "SUMMARY": true, "DESCRIPTION": true, "DTSTART": true,
	"STATUS": true, "CLASS": true, "SEQUENCE": true,
	"RRULE": true, "RDATE": true, "EXDATE": true, "RECURRENCE-ID": true,
	"CATEGORIES": true, "ORGANIZER": true, "ATTENDEE": true,
	"DTSTAMP": true, "LAST-MODIFIED": true, "CREATED": true, "URL": true,
}

func importID(uid string, recID *DateTime) string {
	if recID == nil {
		return uid
	}
	v, _ := formatDateTime(*recID)
	return uid + "|RECID|" + v
}

func captureRaw(c *rawComponent, known map[string]bool) *RawProperties {
	raw := NewRawProperties()
	for i, p := range c.Props {
		if known[p.Name] {
			continue
		}
		raw.Set(p.OrigName, c.rawLines[i])
	}
	return raw
}

func parseEvent(c *rawComponent) (*Event, []Warning, error) {
	e := &Event{}
	var warnings []Warning
	sawDTStart := false

	for _, p := range c.Props {
		switch p.Name {
		case "UID":
			e.UID = p.Value
		case "SUMMARY":
			e.Summary = unescapeText(p.Value)
		case "DESCRIPTION":
			e.Description = unescapeText(p.Value)
		case "LOCATION":
			e.Location = unescapeText(p.Value)
		case "DTSTART":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err != nil {
				return nil, warnings, &icaldav.ParseError{Message: "invalid DTSTART: " + err.Error(), Snippet: snippet(p.Value)}
			}
			e.DTStart = dt
			e.IsAllDay = dt.IsDate
			sawDTStart = true
		case "DTEND":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid DTEND: " + err.Error()})
				continue
			}
			e.DTEnd = &dt
		case "DURATION":
			d, err := parseDuration(p.Value)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid DURATION: " + err.Error()})
				continue
			}
			e.Duration = &d
		case "STATUS":
			e.Status = EventStatus(strings.ToUpper(strings.TrimSpace(p.Value)))
		case "CLASS":
			cl := parseClassification(p.Value)
			e.Classification = &cl
		case "TRANSP":
			e.Transparency = Transparency(strings.ToUpper(strings.TrimSpace(p.Value)))
		case "SEQUENCE":
			e.Sequence = parsePercent(p.Value)
		case "RRULE":
			r, err := parseRRule(p.Value)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid RRULE: " + err.Error()})
				continue
			}
			e.RRule = r
		case "RDATE":
			dts, skipped := parseDateTimeList(p.Value, p.Params)
			if skipped {
				warnings = append(warnings, Warning{Message: "skipped VALUE=PERIOD RDATE"})
				continue
			}
			e.RDates = append(e.RDates, dts...)
		case "EXDATE":
			dts, _ := parseDateTimeList(p.Value, p.Params)
			e.ExDates = append(e.ExDates, dts...)
		case "RECURRENCE-ID":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err == nil {
				e.RecurrenceID = &dt
			}
		case "CATEGORIES":
			for _, part := range splitUnescaped(p.Value, ',') {
				if part = strings.TrimSpace(unescapeText(part)); part != "" {
					e.Categories = append(e.Categories, part)
				}
			}
		case "ORGANIZER":
			e.Organizer = parseOrganizer(p)
		case "ATTENDEE":
			e.Attendees = append(e.Attendees, parseAttendee(p))
		case "COLOR":
			e.Color = p.Value
		case "URL":
			e.URL = p.Value
		}
	}
	if !sawDTStart {
		return nil, warnings, &icaldav.ParseError{Message: "VEVENT missing required DTSTART"}
	}
	var err error
	e.DTStamp, e.LastModified, e.Created, err = commonTimeFields(c.Props)
	if err != nil {
		return nil, warnings, err
	}
	if e.UID == "" {
		warnings = append(warnings, Warning{Message: "VEVENT missing UID"})
	}
	e.ImportID = importID(e.UID, e.RecurrenceID)
	e.RawProperties = captureRaw(c, eventKnownProps)

	for _, child := range c.Children {
		if child.Name == "VALARM" {
			e.Alarms = append(e.Alarms, parseAlarm(child))
		}
	}
	return e, warnings, nil
}

func parseTodo(c *rawComponent) (*Todo, []Warning, error) {
	t := &Todo{}
	var warnings []Warning

	for _, p := range c.Props {
		switch p.Name {
		case "UID":
			t.UID = p.Value
		case "SUMMARY":
			t.Summary = unescapeText(p.Value)
		case "DESCRIPTION":
			t.Description = unescapeText(p.Value)
		case "DTSTART":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err != nil {
				return nil, warnings, &icaldav.ParseError{Message: "invalid DTSTART: " + err.Error(), Snippet: snippet(p.Value)}
			}
			t.DTStart = &dt
		case "DUE":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid DUE: " + err.Error()})
				continue
			}
			t.Due = &dt
		case "DURATION":
			d, err := parseDuration(p.Value)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid DURATION: " + err.Error()})
				continue
			}
			t.Duration = &d
		case "STATUS":
			t.Status = TodoStatus(strings.ToUpper(strings.TrimSpace(p.Value)))
		case "CLASS":
			cl := parseClassification(p.Value)
			t.Classification = &cl
		case "PERCENT-COMPLETE":
			t.PercentComplete = parsePercent(p.Value)
		case "COMPLETED":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err == nil {
				ts := dt.Timestamp
				t.Completed = &ts
			}
		case "SEQUENCE":
			t.Sequence = parsePercent(p.Value)
		case "RRULE":
			r, err := parseRRule(p.Value)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid RRULE: " + err.Error()})
				continue
			}
			t.RRule = r
		case "RDATE":
			dts, skipped := parseDateTimeList(p.Value, p.Params)
			if skipped {
				warnings = append(warnings, Warning{Message: "skipped VALUE=PERIOD RDATE"})
				continue
			}
			t.RDates = append(t.RDates, dts...)
		case "EXDATE":
			dts, _ := parseDateTimeList(p.Value, p.Params)
			t.ExDates = append(t.ExDates, dts...)
		case "RECURRENCE-ID":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err == nil {
				t.RecurrenceID = &dt
			}
		case "CATEGORIES":
			for _, part := range splitUnescaped(p.Value, ',') {
				if part = strings.TrimSpace(unescapeText(part)); part != "" {
					t.Categories = append(t.Categories, part)
				}
			}
		case "ORGANIZER":
			t.Organizer = parseOrganizer(p)
		case "ATTENDEE":
			t.Attendees = append(t.Attendees, parseAttendee(p))
		case "URL":
			t.URL = p.Value
		}
	}
	var err error
	t.DTStamp, t.LastModified, t.Created, err = commonTimeFields(c.Props)
	if err != nil {
		return nil, warnings, err
	}
	if t.UID == "" {
		warnings = append(warnings, Warning{Message: "VTODO missing UID"})
	}
	t.ImportID = importID(t.UID, t.RecurrenceID)
	t.RawProperties = captureRaw(c, todoKnownProps)

	for _, child := range c.Children {
		if child.Name == "VALARM" {
			t.Alarms = append(t.Alarms, parseAlarm(child))
		}
	}
	return t, warnings, nil
}

func parseJournal(c *rawComponent) (*Journal, []Warning, error) {
	j := &Journal{}
	var warnings []Warning

	for _, p := range c.Props {
		switch p.Name {
		case "UID":
			j.UID = p.Value
		case "SUMMARY":
			j.Summary = unescapeText(p.Value)
		case "DESCRIPTION":
			j.Description = unescapeText(p.Value)
		case "DTSTART":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err != nil {
				return nil, warnings, &icaldav.ParseError{Message: "invalid DTSTART: " + err.Error(), Snippet: snippet(p.Value)}
			}
			j.DTStart = &dt
		case "STATUS":
			j.Status = JournalStatus(strings.ToUpper(strings.TrimSpace(p.Value)))
		case "CLASS":
			cl := parseClassification(p.Value)
			j.Classification = &cl
		case "SEQUENCE":
			j.Sequence = parsePercent(p.Value)
		case "RRULE":
			r, err := parseRRule(p.Value)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid RRULE: " + err.Error()})
				continue
			}
			j.RRule = r
		case "RDATE":
			dts, skipped := parseDateTimeList(p.Value, p.Params)
			if skipped {
				warnings = append(warnings, Warning{Message: "skipped VALUE=PERIOD RDATE"})
				continue
			}
			j.RDates = append(j.RDates, dts...)
		case "EXDATE":
			dts, _ := parseDateTimeList(p.Value, p.Params)
			j.ExDates = append(j.ExDates, dts...)
		case "RECURRENCE-ID":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err == nil {
				j.RecurrenceID = &dt
			}
		case "CATEGORIES":
			for _, part := range splitUnescaped(p.Value, ',') {
				if part = strings.TrimSpace(unescapeText(part)); part != "" {
					j.Categories = append(j.Categories, part)
				}
			}
		case "ORGANIZER":
			j.Organizer = parseOrganizer(p)
		case "ATTENDEE":
			j.Attendees = append(j.Attendees, parseAttendee(p))
		case "URL":
			j.URL = p.Value
		}
	}
	var err error
	j.DTStamp, j.LastModified, j.Created, err = commonTimeFields(c.Props)
	if err != nil {
		return nil, warnings, err
	}
	if j.UID == "" {
		warnings = append(warnings, Warning{Message: "VJOURNAL missing UID"})
	}
	j.ImportID = importID(j.UID, j.RecurrenceID)
	j.RawProperties = captureRaw(c, journalKnownProps)
	return j, warnings, nil
}

// parseFreeBusy parses a VFREEBUSY component into query_free_busy's result
// shape (spec §4.4). The outbox's schedule-response carries one
// VFREEBUSY per attendee, so only the single-attendee form is modelled;
// a component naming more than one ATTENDEE keeps the first and drops
// the rest with a warning.
func parseFreeBusy(c *rawComponent) (*FreeBusy, []Warning, error) {
	fb := &FreeBusy{}
	var warnings []Warning
	attendeeSeen := false
	sawDTStart := false

	for _, p := range c.Props {
		switch p.Name {
		case "UID":
			fb.UID = p.Value
		case "DTSTART":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err != nil {
				return nil, warnings, &icaldav.ParseError{Message: "invalid DTSTART: " + err.Error(), Snippet: snippet(p.Value)}
			}
			fb.DTStart = dt
			sawDTStart = true
		case "DTEND":
			dt, err := parseDateTimeValue(p.Value, p.Params)
			if err != nil {
				warnings = append(warnings, Warning{Message: "invalid DTEND: " + err.Error()})
				continue
			}
			fb.DTEnd = dt
		case "ORGANIZER":
			fb.Organizer = p.Value
		case "ATTENDEE":
			if attendeeSeen {
				warnings = append(warnings, Warning{Message: "ignoring extra ATTENDEE in VFREEBUSY"})
				continue
			}
			fb.Attendee = p.Value
			attendeeSeen = true
		case "FREEBUSY":
			periods, skipped := parseFreeBusyPeriods(p.Value)
			if skipped > 0 {
				warnings = append(warnings, Warning{Message: "skipped malformed FREEBUSY period"})
			}
			fb.Busy = append(fb.Busy, periods...)
		}
	}
	if !sawDTStart {
		return nil, warnings, &icaldav.ParseError{Message: "VFREEBUSY missing required DTSTART"}
	}
	if fb.UID == "" {
		warnings = append(warnings, Warning{Message: "VFREEBUSY missing UID"})
	}
	return fb, warnings, nil
}

// parseFreeBusyPeriods parses a FREEBUSY value: a comma-separated list of
// RFC 5545 §3.3.6 periods, each either "start/end" or "start/duration"
// (spec §4.1's period grammar). Entries that fail to parse are skipped and
// counted in the returned skip count rather than aborting the whole value.
func parseFreeBusyPeriods(value string) (periods []Period, skipped int) {
	for _, part := range splitUnescaped(value, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		halves := strings.SplitN(part, "/", 2)
		if len(halves) != 2 {
			skipped++
			continue
		}
		start, err := parseDateTimeValue(strings.TrimSpace(halves[0]), nil)
		if err != nil {
			skipped++
			continue
		}
		endRaw := strings.TrimSpace(halves[1])
		var end time.Time
		if strings.HasPrefix(endRaw, "P") || strings.HasPrefix(endRaw, "-P") {
			d, err := parseDuration(endRaw)
			if err != nil {
				skipped++
				continue
			}
			end = start.Timestamp.Add(d)
		} else {
			endDT, err := parseDateTimeValue(endRaw, nil)
			if err != nil {
				skipped++
				continue
			}
			end = endDT.Timestamp
		}
		periods = append(periods, Period{Start: start.Timestamp, End: end})
	}
	return periods, skipped
}
