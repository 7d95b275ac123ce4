// Package davxml builds CalDAV/WebDAV request bodies and parses
// multistatus responses (RFC 4918, RFC 4791, RFC 6578, RFC 3744,
// RFC 6638), XXE-safely (spec §4.3).
package davxml

import "time"

const (
	NSDAV    = "DAV:"
	NSCalDAV = "urn:ietf:params:xml:ns:caldav"
	NSCS     = "http://calendarserver.org/ns/"
	NSApple  = "http://apple.com/ns/ical/"
)

// TimeRange is a CALDAV:time-range filter element, half-open in instant
// time; either bound may be zero to mean unbounded.
type TimeRange struct {
	Start, End time.Time
}

// TextMatch is a CALDAV:text-match filter element.
type TextMatch struct {
	Value           string
	Collation       string
	NegateCondition bool
}

// ParamFilter is a CALDAV:param-filter filter element.
type ParamFilter struct {
	Name      string
	TextMatch *TextMatch
}

// PropFilter is a CALDAV:prop-filter filter element.
type PropFilter struct {
	Name        string
	TextMatch   *TextMatch
	ParamFilter []ParamFilter
}

// CompFilter is a CALDAV:comp-filter filter element, recursively nested
// (VCALENDAR > VEVENT > ...).
type CompFilter struct {
	Name       string
	TimeRange  *TimeRange
	PropFilter []PropFilter
	CompFilter []CompFilter
}

// Ace is a DAV:ace ACL entry (RFC 3744). Principal carries an href for
// the common Href-principal case; PrincipalElem names a bare DAV
// principal element instead (e.g. "all", "authenticated", "self") and
// takes precedence when non-empty.
type Ace struct {
	Principal     string
	PrincipalElem string
	Grant         []string // DAV: privilege local names, e.g. "read", "write"
	Deny          []string
}
