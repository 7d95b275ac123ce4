package ical

import (
	"strconv"
	"strings"
	"time"

	"github.com/nyxcal/icaldav"
)

// Warning is a non-fatal note raised during parsing (spec §4.1: a
// VALUE=PERIOD RDATE entry is skipped with a warning, not an error).
type Warning struct {
	Message string
}

// rawComponent is the generic component tree produced by stage 1 of
// parsing, before any known-type interpretation.
type rawComponent struct {
	Name     string
	Props    []rawProperty
	Children []*rawComponent
	rawLines []string // exact logical lines between BEGIN and END, for opaque round-trip
}

// parseComponentTree performs the recursive-descent walk over
// BEGIN:X/END:X pairs (spec §4.1). It returns a ParseError on malformed
// nesting.
func parseComponentTree(lines []string) (*rawComponent, error) {
	pos := 0
	comp, next, err := parseOneComponent(lines, pos)
	if err != nil {
		return nil, err
	}
	if next != len(lines) {
		return nil, &icaldav.ParseError{Message: "trailing content after root component"}
	}
	return comp, nil
}

func parseOneComponent(lines []string, pos int) (*rawComponent, int, error) {
	if pos >= len(lines) {
		return nil, pos, &icaldav.ParseError{Message: "unexpected end of input, expected BEGIN"}
	}
	head, err := parseLine(lines[pos])
	if err != nil {
		return nil, pos, err
	}
	if head.Name != "BEGIN" {
		return nil, pos, &icaldav.ParseError{Message: "expected BEGIN", Snippet: snippet(lines[pos])}
	}
	name := strings.ToUpper(head.Value)
	comp := &rawComponent{Name: name}
	pos++

	for {
		if pos >= len(lines) {
			return nil, pos, &icaldav.ParseError{Message: "unterminated component " + name}
		}
		line := lines[pos]
		p, err := parseLine(line)
		if err != nil {
			return nil, pos, err
		}
		switch p.Name {
		case "BEGIN":
			child, next, err := parseOneComponent(lines, pos)
			if err != nil {
				return nil, pos, err
			}
			comp.Children = append(comp.Children, child)
			pos = next
			continue
		case "END":
			if strings.ToUpper(p.Value) != name {
				return nil, pos, &icaldav.ParseError{Message: "mismatched END for " + name, Snippet: snippet(line)}
			}
			pos++
			return comp, pos, nil
		default:
			comp.Props = append(comp.Props, p)
			comp.rawLines = append(comp.rawLines, line)
			pos++
		}
	}
}

// ParseCalendar parses a complete VCALENDAR stream (spec §4.1). A single
// unparsable event within a multi-event stream does not abort the whole
// parse: it is dropped and recorded as a Warning.
func ParseCalendar(data []byte) (*Calendar, []Warning, error) {
	lines := unfold(data)
	if len(lines) == 0 {
		return nil, nil, &icaldav.ParseError{Message: "empty input"}
	}
	root, err := parseComponentTree(lines)
	if err != nil {
		return nil, nil, err
	}
	if root.Name != "VCALENDAR" {
		return nil, nil, &icaldav.ParseError{Message: "root component is not VCALENDAR", Snippet: root.Name}
	}

	cal := &Calendar{Timezones: map[string]string{}}
	var warnings []Warning

	for _, p := range root.Props {
		switch p.Name {
		case "PRODID":
			cal.ProdID = unescapeText(p.Value)
		case "VERSION":
			cal.Version = p.Value
		}
	}

	for _, child := range root.Children {
		switch child.Name {
		case "VEVENT":
			ev, warns, err := parseEvent(child)
			if err != nil {
				warnings = append(warnings, Warning{Message: "dropped malformed VEVENT: " + err.Error()})
				continue
			}
			warnings = append(warnings, warns...)
			cal.Events = append(cal.Events, ev)
		case "VTODO":
			td, warns, err := parseTodo(child)
			if err != nil {
				warnings = append(warnings, Warning{Message: "dropped malformed VTODO: " + err.Error()})
				continue
			}
			warnings = append(warnings, warns...)
			cal.Todos = append(cal.Todos, td)
		case "VJOURNAL":
			jr, warns, err := parseJournal(child)
			if err != nil {
				warnings = append(warnings, Warning{Message: "dropped malformed VJOURNAL: " + err.Error()})
				continue
			}
			warnings = append(warnings, warns...)
			cal.Journals = append(cal.Journals, jr)
		case "VFREEBUSY":
			fb, warns, err := parseFreeBusy(child)
			if err != nil {
				warnings = append(warnings, Warning{Message: "dropped malformed VFREEBUSY: " + err.Error()})
				continue
			}
			warnings = append(warnings, warns...)
			cal.FreeBusys = append(cal.FreeBusys, fb)
		case "VTIMEZONE":
			tzid, block := renderOpaqueComponent(child)
			if tzid != "" {
				cal.Timezones[tzid] = block
			}
		default:
			// Unknown top-level component: not kept. The Calendar model
			// has no slot for unrecognised components other than
			// timezones, so the component is dropped and Generate does
			// not re-emit it.
		}
	}

	return cal, warnings, nil
}

func renderOpaqueComponent(c *rawComponent) (tzid string, block string) {
	var b strings.Builder
	b.WriteString("BEGIN:" + c.Name + "\r\n")
	for _, line := range c.rawLines {
		b.WriteString(fold(line))
		if line != "" {
			p, err := parseLine(line)
			if err == nil && p.Name == "TZID" {
				tzid = p.Value
			}
		}
	}
	for _, child := range c.Children {
		_, childBlock := renderOpaqueComponent(child)
		b.WriteString(childBlock)
	}
	b.WriteString("END:" + c.Name + "\r\n")
	return tzid, b.String()
}

// commonTimeFields parses the DTSTAMP/LAST-MODIFIED/CREATED properties
// shared by VEVENT/VTODO/VJOURNAL. DTSTAMP is optional (spec §3's
// `dtstamp?`) but, when present, a malformed value is a content error the
// caller must surface rather than silently drop (spec §4.1's per-event
// ParseError); LAST-MODIFIED/CREATED are best-effort since no invariant
// depends on them.
func commonTimeFields(props []rawProperty) (dtstamp, lastMod, created *time.Time, err error) {
	for _, p := range props {
		switch p.Name {
		case "DTSTAMP":
			dt, perr := parseDateTimeValue(p.Value, p.Params)
			if perr != nil {
				return nil, nil, nil, &icaldav.ParseError{Message: "invalid DTSTAMP: " + perr.Error(), Snippet: snippet(p.Value)}
			}
			t := dt.Timestamp
			dtstamp = &t
		case "LAST-MODIFIED":
			if dt, err := parseDateTimeValue(p.Value, p.Params); err == nil {
				t := dt.Timestamp
				lastMod = &t
			}
		case "CREATED":
			if dt, err := parseDateTimeValue(p.Value, p.Params); err == nil {
				t := dt.Timestamp
				created = &t
			}
		}
	}
	return dtstamp, lastMod, created, nil
}

func parseOrganizer(p rawProperty) *Organizer {
	o := &Organizer{CalAddress: p.Value}
	if cn, ok := p.param("CN"); ok {
		o.CN = cn
	}
	return o
}

func parseAttendee(p rawProperty) Attendee {
	a := Attendee{CalAddress: p.Value}
	if cn, ok := p.param("CN"); ok {
		a.CN = cn
	}
	if role, ok := p.param("ROLE"); ok {
		a.Role = role
	}
	if ps, ok := p.param("PARTSTAT"); ok {
		a.PartStat = ps
	}
	if rsvp, ok := p.param("RSVP"); ok {
		a.RSVP = strings.EqualFold(rsvp, "TRUE")
	}
	return a
}

func parseAlarm(c *rawComponent) Alarm {
	a := Alarm{}
	known := map[string]bool{"ACTION": true, "TRIGGER": true, "DESCRIPTION": true, "SUMMARY": true}
	for _, p := range c.Props {
		switch p.Name {
		case "ACTION":
			a.Action = p.Value
		case "TRIGGER":
			a.Trigger = p.Value
		case "DESCRIPTION":
			a.Description = unescapeText(p.Value)
		case "SUMMARY":
			a.Summary = unescapeText(p.Value)
		}
	}
	for _, line := range c.rawLines {
		p, err := parseLine(line)
		if err != nil || known[p.Name] {
			continue
		}
		a.RawLines = append(a.RawLines, line)
	}
	return a
}

func parseClassification(value string) Classification {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "PRIVATE":
		return ClassPrivate
	case "CONFIDENTIAL":
		return ClassConfidential
	default:
		return ClassPublic
	}
}

func parsePercent(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}
