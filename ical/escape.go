package ical

import "strings"

// unescapeText reverses the RFC 5545 §3.3.11 TEXT escapes: \\ -> \, \n or
// \N -> newline, \, -> ,, \; -> ;.
func unescapeText(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case '\\':
			b.WriteByte('\\')
		case 'n', 'N':
			b.WriteByte('\n')
		case ',':
			b.WriteByte(',')
		case ';':
			b.WriteByte(';')
		default:
			// Not a recognised escape: keep both characters verbatim.
			b.WriteByte(c)
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}

// escapeText applies the exact reverse of unescapeText, so that
// parse(generate(e)) round-trips (spec §8).
func escapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case ',':
			b.WriteString(`\,`)
		case ';':
			b.WriteString(`\;`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitUnescaped splits s on unescaped occurrences of sep (a single
// byte), used for comma-separated value lists (RDATE, EXDATE,
// CATEGORIES) where a literal comma may appear escaped as "\,".
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if c == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	parts = append(parts, cur.String())
	return parts
}
