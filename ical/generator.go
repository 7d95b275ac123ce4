package ical

import (
	"fmt"
	"strconv"
	"strings"
)

// Generate regenerates the VCALENDAR text for cal (spec §4.1: the
// generator is the inverse of the parser, CRLF-terminated and
// 75-octet-folded).
func Generate(cal *Calendar) []byte {
	var b strings.Builder
	b.WriteString(fold("BEGIN:VCALENDAR"))
	prodID := cal.ProdID
	if prodID == "" {
		prodID = "-//nyxcal//icaldav//EN"
	}
	b.WriteString(fold("PRODID:" + escapeText(prodID)))
	version := cal.Version
	if version == "" {
		version = "2.0"
	}
	b.WriteString(fold("VERSION:" + version))
	b.WriteString(fold("CALSCALE:GREGORIAN"))

	for _, tz := range cal.Timezones {
		b.WriteString(tz)
	}
	for _, e := range cal.Events {
		writeEvent(&b, e)
	}
	for _, t := range cal.Todos {
		writeTodo(&b, t)
	}
	for _, j := range cal.Journals {
		writeJournal(&b, j)
	}
	for _, fb := range cal.FreeBusys {
		writeFreeBusy(&b, fb)
	}
	b.WriteString(fold("END:VCALENDAR"))
	return []byte(b.String())
}

func writeDateTimeLine(b *strings.Builder, name string, d DateTime) {
	value, params := formatDateTime(d)
	b.WriteString(fold(name + encodeParams(params) + ":" + value))
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range []string{"VALUE", "TZID"} {
		if v, ok := params[k]; ok {
			fmt.Fprintf(&b, ";%s=%s", k, v)
		}
	}
	return b.String()
}

func writeRawProperties(b *strings.Builder, raw *RawProperties) {
	for _, name := range raw.Keys() {
		line, _ := raw.Get(name)
		b.WriteString(fold(line))
	}
}

func writeEvent(b *strings.Builder, e *Event) {
	b.WriteString(fold("BEGIN:VEVENT"))
	b.WriteString(fold("UID:" + e.UID))
	if e.DTStamp != nil {
		writeDateTimeLine(b, "DTSTAMP", DateTime{Timestamp: *e.DTStamp, IsUTC: true})
	}
	writeDateTimeLine(b, "DTSTART", e.DTStart)
	if e.DTEnd != nil {
		writeDateTimeLine(b, "DTEND", *e.DTEnd)
	}
	if e.Duration != nil {
		b.WriteString(fold("DURATION:" + formatDuration(*e.Duration)))
	}
	if e.Summary != "" {
		b.WriteString(fold("SUMMARY:" + escapeText(e.Summary)))
	}
	if e.Description != "" {
		b.WriteString(fold("DESCRIPTION:" + escapeText(e.Description)))
	}
	if e.Location != "" {
		b.WriteString(fold("LOCATION:" + escapeText(e.Location)))
	}
	if e.Status != "" {
		b.WriteString(fold("STATUS:" + string(e.Status)))
	}
	if e.Classification != nil {
		b.WriteString(fold("CLASS:" + string(*e.Classification)))
	}
	if e.Transparency != "" {
		b.WriteString(fold("TRANSP:" + string(e.Transparency)))
	}
	b.WriteString(fold("SEQUENCE:" + strconv.Itoa(e.Sequence)))
	if e.RRule != nil {
		b.WriteString(fold("RRULE:" + formatRRule(e.RRule)))
	}
	for _, d := range e.RDates {
		writeDateTimeLine(b, "RDATE", d)
	}
	for _, d := range e.ExDates {
		writeDateTimeLine(b, "EXDATE", d)
	}
	if e.RecurrenceID != nil {
		writeDateTimeLine(b, "RECURRENCE-ID", *e.RecurrenceID)
	}
	if len(e.Categories) > 0 {
		b.WriteString(fold("CATEGORIES:" + joinEscaped(e.Categories)))
	}
	if e.Organizer != nil {
		b.WriteString(fold(organizerLine(e.Organizer)))
	}
	for _, a := range e.Attendees {
		b.WriteString(fold(attendeeLine(a)))
	}
	if e.Color != "" {
		b.WriteString(fold("COLOR:" + e.Color))
	}
	if e.URL != "" {
		b.WriteString(fold("URL:" + e.URL))
	}
	if e.LastModified != nil {
		writeDateTimeLine(b, "LAST-MODIFIED", DateTime{Timestamp: *e.LastModified, IsUTC: true})
	}
	if e.Created != nil {
		writeDateTimeLine(b, "CREATED", DateTime{Timestamp: *e.Created, IsUTC: true})
	}
	if e.RawProperties != nil {
		writeRawProperties(b, e.RawProperties)
	}
	for _, a := range e.Alarms {
		writeAlarm(b, a)
	}
	b.WriteString(fold("END:VEVENT"))
}

func writeTodo(b *strings.Builder, t *Todo) {
	b.WriteString(fold("BEGIN:VTODO"))
	b.WriteString(fold("UID:" + t.UID))
	if t.DTStamp != nil {
		writeDateTimeLine(b, "DTSTAMP", DateTime{Timestamp: *t.DTStamp, IsUTC: true})
	}
	if t.DTStart != nil {
		writeDateTimeLine(b, "DTSTART", *t.DTStart)
	}
	if t.Due != nil {
		writeDateTimeLine(b, "DUE", *t.Due)
	}
	if t.Duration != nil {
		b.WriteString(fold("DURATION:" + formatDuration(*t.Duration)))
	}
	if t.Summary != "" {
		b.WriteString(fold("SUMMARY:" + escapeText(t.Summary)))
	}
	if t.Description != "" {
		b.WriteString(fold("DESCRIPTION:" + escapeText(t.Description)))
	}
	if t.Status != "" {
		b.WriteString(fold("STATUS:" + string(t.Status)))
	}
	if t.Classification != nil {
		b.WriteString(fold("CLASS:" + string(*t.Classification)))
	}
	if t.PercentComplete != 0 {
		b.WriteString(fold("PERCENT-COMPLETE:" + strconv.Itoa(t.PercentComplete)))
	}
	if t.Completed != nil {
		writeDateTimeLine(b, "COMPLETED", DateTime{Timestamp: *t.Completed, IsUTC: true})
	}
	b.WriteString(fold("SEQUENCE:" + strconv.Itoa(t.Sequence)))
	if t.RRule != nil {
		b.WriteString(fold("RRULE:" + formatRRule(t.RRule)))
	}
	for _, d := range t.RDates {
		writeDateTimeLine(b, "RDATE", d)
	}
	for _, d := range t.ExDates {
		writeDateTimeLine(b, "EXDATE", d)
	}
	if t.RecurrenceID != nil {
		writeDateTimeLine(b, "RECURRENCE-ID", *t.RecurrenceID)
	}
	if len(t.Categories) > 0 {
		b.WriteString(fold("CATEGORIES:" + joinEscaped(t.Categories)))
	}
	if t.Organizer != nil {
		b.WriteString(fold(organizerLine(t.Organizer)))
	}
	for _, a := range t.Attendees {
		b.WriteString(fold(attendeeLine(a)))
	}
	if t.URL != "" {
		b.WriteString(fold("URL:" + t.URL))
	}
	if t.LastModified != nil {
		writeDateTimeLine(b, "LAST-MODIFIED", DateTime{Timestamp: *t.LastModified, IsUTC: true})
	}
	if t.Created != nil {
		writeDateTimeLine(b, "CREATED", DateTime{Timestamp: *t.Created, IsUTC: true})
	}
	if t.RawProperties != nil {
		writeRawProperties(b, t.RawProperties)
	}
	b.WriteString(fold("END:VTODO"))
}

func writeJournal(b *strings.Builder, j *Journal) {
	b.WriteString(fold("BEGIN:VJOURNAL"))
	b.WriteString(fold("UID:" + j.UID))
	if j.DTStamp != nil {
		writeDateTimeLine(b, "DTSTAMP", DateTime{Timestamp: *j.DTStamp, IsUTC: true})
	}
	if j.DTStart != nil {
		writeDateTimeLine(b, "DTSTART", *j.DTStart)
	}
	if j.Summary != "" {
		b.WriteString(fold("SUMMARY:" + escapeText(j.Summary)))
	}
	if j.Description != "" {
		b.WriteString(fold("DESCRIPTION:" + escapeText(j.Description)))
	}
	if j.Status != "" {
		b.WriteString(fold("STATUS:" + string(j.Status)))
	}
	if j.Classification != nil {
		b.WriteString(fold("CLASS:" + string(*j.Classification)))
	}
	b.WriteString(fold("SEQUENCE:" + strconv.Itoa(j.Sequence)))
	if j.RRule != nil {
		b.WriteString(fold("RRULE:" + formatRRule(j.RRule)))
	}
	for _, d := range j.RDates {
		writeDateTimeLine(b, "RDATE", d)
	}
	for _, d := range j.ExDates {
		writeDateTimeLine(b, "EXDATE", d)
	}
	if j.RecurrenceID != nil {
		writeDateTimeLine(b, "RECURRENCE-ID", *j.RecurrenceID)
	}
	if len(j.Categories) > 0 {
		b.WriteString(fold("CATEGORIES:" + joinEscaped(j.Categories)))
	}
	if j.Organizer != nil {
		b.WriteString(fold(organizerLine(j.Organizer)))
	}
	for _, a := range j.Attendees {
		b.WriteString(fold(attendeeLine(a)))
	}
	if j.URL != "" {
		b.WriteString(fold("URL:" + j.URL))
	}
	if j.LastModified != nil {
		writeDateTimeLine(b, "LAST-MODIFIED", DateTime{Timestamp: *j.LastModified, IsUTC: true})
	}
	if j.Created != nil {
		writeDateTimeLine(b, "CREATED", DateTime{Timestamp: *j.Created, IsUTC: true})
	}
	if j.RawProperties != nil {
		writeRawProperties(b, j.RawProperties)
	}
	b.WriteString(fold("END:VJOURNAL"))
}

func writeAlarm(b *strings.Builder, a Alarm) {
	b.WriteString(fold("BEGIN:VALARM"))
	if a.Action != "" {
		b.WriteString(fold("ACTION:" + a.Action))
	}
	if a.Trigger != "" {
		b.WriteString(fold("TRIGGER:" + a.Trigger))
	}
	if a.Description != "" {
		b.WriteString(fold("DESCRIPTION:" + escapeText(a.Description)))
	}
	if a.Summary != "" {
		b.WriteString(fold("SUMMARY:" + escapeText(a.Summary)))
	}
	for _, line := range a.RawLines {
		b.WriteString(fold(line))
	}
	b.WriteString(fold("END:VALARM"))
}

func writeFreeBusy(b *strings.Builder, fb *FreeBusy) {
	b.WriteString(fold("BEGIN:VFREEBUSY"))
	b.WriteString(fold("UID:" + fb.UID))
	writeDateTimeLine(b, "DTSTART", fb.DTStart)
	writeDateTimeLine(b, "DTEND", fb.DTEnd)
	if fb.Organizer != "" {
		b.WriteString(fold("ORGANIZER:" + fb.Organizer))
	}
	if fb.Attendee != "" {
		b.WriteString(fold("ATTENDEE:" + fb.Attendee))
	}
	if len(fb.Busy) > 0 {
		b.WriteString(fold("FREEBUSY:" + formatFreeBusyPeriods(fb.Busy)))
	}
	b.WriteString(fold("END:VFREEBUSY"))
}

func formatFreeBusyPeriods(periods []Period) string {
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = p.Start.UTC().Format(dateTimeUTCLayout) + "/" + p.End.UTC().Format(dateTimeUTCLayout)
	}
	return strings.Join(parts, ",")
}

func joinEscaped(items []string) string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = escapeText(s)
	}
	return strings.Join(out, ",")
}

func organizerLine(o *Organizer) string {
	var b strings.Builder
	b.WriteString("ORGANIZER")
	if o.CN != "" {
		fmt.Fprintf(&b, ";CN=%s", o.CN)
	}
	b.WriteString(":" + o.CalAddress)
	return b.String()
}

func attendeeLine(a Attendee) string {
	var b strings.Builder
	b.WriteString("ATTENDEE")
	if a.CN != "" {
		fmt.Fprintf(&b, ";CN=%s", a.CN)
	}
	if a.Role != "" {
		fmt.Fprintf(&b, ";ROLE=%s", a.Role)
	}
	if a.PartStat != "" {
		fmt.Fprintf(&b, ";PARTSTAT=%s", a.PartStat)
	}
	if a.RSVP {
		b.WriteString(";RSVP=TRUE")
	}
	b.WriteString(":" + a.CalAddress)
	return b.String()
}
