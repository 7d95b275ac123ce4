package capcache

import (
	"strings"
	"time"
)

// ServerCapabilities is spec §3's ServerCapabilities: what a server's
// OPTIONS response told the client it supports.
type ServerCapabilities struct {
	DavClasses     map[string]bool
	AllowedMethods map[string]bool
	RawDavHeader   string
	DiscoveredAt   time.Time
}

// SupportsCalDAV reports whether the server advertised the "calendar-access"
// DAV class (RFC 4791).
func (c ServerCapabilities) SupportsCalDAV() bool {
	return c.DavClasses["calendar-access"]
}

// SupportsSyncCollection reports whether DAV class 3 or "sync-collection"
// was advertised (RFC 6578).
func (c ServerCapabilities) SupportsSyncCollection() bool {
	return c.DavClasses["3"] || c.DavClasses["sync-collection"]
}

// SupportsAutoSchedule reports whether the "calendar-auto-schedule" class
// was advertised (RFC 6638).
func (c ServerCapabilities) SupportsAutoSchedule() bool {
	return c.DavClasses["calendar-auto-schedule"]
}

// SupportsACL reports whether the "access-control" DAV class was
// advertised (RFC 3744).
func (c ServerCapabilities) SupportsACL() bool {
	return c.DavClasses["access-control"]
}

// SupportsMkcalendar reports whether MKCALENDAR is in Allow.
func (c ServerCapabilities) SupportsMkcalendar() bool {
	return c.AllowedMethods["MKCALENDAR"]
}

// SupportsExtendedMkcol reports whether the "extended-mkcol" class was
// advertised (RFC 5689).
func (c ServerCapabilities) SupportsExtendedMkcol() bool {
	return c.DavClasses["extended-mkcol"]
}

// ParseDavHeader splits a DAV: response header's comma-separated class
// tokens into a set.
func ParseDavHeader(header string) map[string]bool {
	classes := map[string]bool{}
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			classes[tok] = true
		}
	}
	return classes
}
