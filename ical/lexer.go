package ical

import (
	"bufio"
	"strings"

	"github.com/nyxcal/icaldav"
)

// rawProperty is one parsed logical line: NAME;PARAM=VAL,VAL;...:VALUE.
type rawProperty struct {
	Name     string // upper-cased, used to dispatch on known property names
	OrigName string // exact wire case, used when preserving an unknown property
	Params   map[string][]string // insertion order not required for params
	Value    string
}

// unfold recovers logical lines (spec §4.1) from a raw iCalendar byte
// stream: CRLF is canonical but bare LF must be accepted, and any
// physical line whose first octet is a space or tab continues the
// previous logical line with that octet discarded.
func unfold(data []byte) []string {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines []string
	var cur strings.Builder
	has := false
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			cur.WriteString(line[1:])
			continue
		}
		if has {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
		has = true
	}
	if has {
		lines = append(lines, cur.String())
	}
	return lines
}

// parseLine splits one logical line into NAME, parameters, and VALUE.
func parseLine(line string) (rawProperty, error) {
	nameEnd := len(line)
	for i := 0; i < len(line); i++ {
		if line[i] == ';' || line[i] == ':' {
			nameEnd = i
			break
		}
	}
	if nameEnd == len(line) {
		return rawProperty{}, &icaldav.ParseError{Message: "property line missing ':'", Snippet: snippet(line)}
	}
	prop := rawProperty{Name: strings.ToUpper(line[:nameEnd]), OrigName: line[:nameEnd], Params: map[string][]string{}}

	rest := line[nameEnd:]
	// rest begins with either ';' (more params) or ':' (value).
	for len(rest) > 0 && rest[0] == ';' {
		rest = rest[1:]
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return rawProperty{}, &icaldav.ParseError{Message: "malformed parameter", Snippet: snippet(line)}
		}
		pname := strings.ToUpper(rest[:eq])
		rest = rest[eq+1:]

		var values []string
		for {
			var val string
			if len(rest) > 0 && rest[0] == '"' {
				end := strings.IndexByte(rest[1:], '"')
				if end < 0 {
					return rawProperty{}, &icaldav.ParseError{Message: "unterminated quoted parameter", Snippet: snippet(line)}
				}
				val = rest[1 : 1+end]
				rest = rest[2+end:]
			} else {
				end := strings.IndexAny(rest, ",;:")
				if end < 0 {
					return rawProperty{}, &icaldav.ParseError{Message: "malformed parameter value", Snippet: snippet(line)}
				}
				val = rest[:end]
				rest = rest[end:]
			}
			values = append(values, val)
			if len(rest) > 0 && rest[0] == ',' {
				rest = rest[1:]
				continue
			}
			break
		}
		prop.Params[pname] = values
	}

	if len(rest) == 0 || rest[0] != ':' {
		return rawProperty{}, &icaldav.ParseError{Message: "property line missing ':'", Snippet: snippet(line)}
	}
	prop.Value = rest[1:]
	return prop, nil
}

func (p rawProperty) param(name string) (string, bool) {
	vs, ok := p.Params[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func snippet(s string) string {
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// fold breaks a generated logical line into RFC 5545 §3.1-compliant
// physical lines of at most 75 octets, using CRLF + SPACE continuations.
func fold(line string) string {
	const limit = 75
	if len(line) <= limit {
		return line + "\r\n"
	}
	var b strings.Builder
	remaining := line
	first := true
	for len(remaining) > 0 {
		width := limit
		if !first {
			width = limit - 1 // account for the leading continuation space
		}
		if len(remaining) <= width {
			if !first {
				b.WriteByte(' ')
			}
			b.WriteString(remaining)
			b.WriteString("\r\n")
			break
		}
		cut := width
		// Never split a UTF-8 continuation byte across physical lines.
		for cut > 0 && isUTF8Continuation(remaining[cut]) {
			cut--
		}
		if !first {
			b.WriteByte(' ')
		}
		b.WriteString(remaining[:cut])
		b.WriteString("\r\n")
		remaining = remaining[cut:]
		first = false
	}
	return b.String()
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}
