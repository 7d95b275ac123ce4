package davxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Prefixes bundles the namespace prefixes used when serialising a
// request body. Most requests may use uppercase D:/C:/CS:/A:; iCloud
// requires lowercase d:/c: specifically for calendar-query and
// calendar-multiget (spec §4.5) — callers select that via quirks and
// pass the resulting Prefixes in.
type Prefixes struct {
	Dav, CalDAV, CS, Apple string
}

// DefaultPrefixes are the RFC-conventional uppercase prefixes.
func DefaultPrefixes() Prefixes {
	return Prefixes{Dav: "D", CalDAV: "C", CS: "CS", Apple: "A"}
}

// LowercasePrefixes matches what iCloud's CalDAV server requires for
// calendar-query/calendar-multiget request bodies.
func LowercasePrefixes() Prefixes {
	return Prefixes{Dav: "d", CalDAV: "c", CS: "cs", Apple: "a"}
}

func esc(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// BuildPropfind emits a DAV:propfind request body for the given
// DAV:-namespaced property local names.
func BuildPropfind(pfx Prefixes, props []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:propfind xmlns:%s="%s"><%s:prop>`,
		pfx.Dav, pfx.Dav, NSDAV, pfx.Dav)
	for _, p := range props {
		fmt.Fprintf(&b, "<%s:%s/>", pfx.Dav, p)
	}
	fmt.Fprintf(&b, `</%s:prop></%s:propfind>`, pfx.Dav, pfx.Dav)
	return []byte(b.String())
}

// BuildCalendarQuery emits a CALDAV:calendar-query REPORT body.
func BuildCalendarQuery(pfx Prefixes, davProps []string, calProps []string, filter CompFilter) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:calendar-query xmlns:%s="%s" xmlns:%s="%s"><%s:prop>`,
		pfx.CalDAV, pfx.Dav, NSDAV, pfx.CalDAV, NSCalDAV, pfx.Dav)
	for _, p := range davProps {
		fmt.Fprintf(&b, "<%s:%s/>", pfx.Dav, p)
	}
	for _, p := range calProps {
		fmt.Fprintf(&b, "<%s:%s/>", pfx.CalDAV, p)
	}
	fmt.Fprintf(&b, `</%s:prop><%s:filter>`, pfx.Dav, pfx.CalDAV)
	writeCompFilter(&b, pfx, filter)
	fmt.Fprintf(&b, `</%s:filter></%s:calendar-query>`, pfx.CalDAV, pfx.CalDAV)
	return []byte(b.String())
}

// BuildCalendarMultiget emits a CALDAV:calendar-multiget REPORT body.
func BuildCalendarMultiget(pfx Prefixes, davProps, calProps []string, hrefs []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:calendar-multiget xmlns:%s="%s" xmlns:%s="%s"><%s:prop>`,
		pfx.CalDAV, pfx.Dav, NSDAV, pfx.CalDAV, NSCalDAV, pfx.Dav)
	for _, p := range davProps {
		fmt.Fprintf(&b, "<%s:%s/>", pfx.Dav, p)
	}
	for _, p := range calProps {
		fmt.Fprintf(&b, "<%s:%s/>", pfx.CalDAV, p)
	}
	fmt.Fprintf(&b, `</%s:prop>`, pfx.Dav)
	for _, h := range hrefs {
		fmt.Fprintf(&b, "<%s:href>%s</%s:href>", pfx.Dav, esc(h), pfx.Dav)
	}
	fmt.Fprintf(&b, `</%s:calendar-multiget>`, pfx.CalDAV)
	return []byte(b.String())
}

// BuildSyncCollection emits a DAV:sync-collection REPORT body (RFC 6578).
func BuildSyncCollection(pfx Prefixes, syncToken string, davProps, calProps []string, limit int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:sync-collection xmlns:%s="%s" xmlns:%s="%s">`,
		pfx.Dav, pfx.Dav, NSDAV, pfx.CalDAV, NSCalDAV)
	fmt.Fprintf(&b, "<%s:sync-token>%s</%s:sync-token>", pfx.Dav, esc(syncToken), pfx.Dav)
	fmt.Fprintf(&b, "<%s:sync-level>1</%s:sync-level>", pfx.Dav, pfx.Dav)
	if limit > 0 {
		fmt.Fprintf(&b, "<%s:limit><%s:nresults>%d</%s:nresults></%s:limit>", pfx.Dav, pfx.Dav, limit, pfx.Dav, pfx.Dav)
	}
	fmt.Fprintf(&b, "<%s:prop>", pfx.Dav)
	for _, p := range davProps {
		fmt.Fprintf(&b, "<%s:%s/>", pfx.Dav, p)
	}
	for _, p := range calProps {
		fmt.Fprintf(&b, "<%s:%s/>", pfx.CalDAV, p)
	}
	fmt.Fprintf(&b, "</%s:prop></%s:sync-collection>", pfx.Dav, pfx.Dav)
	return []byte(b.String())
}

// BuildMkcalendar emits a CALDAV:mkcalendar request body. When
// extendedMkcol is true the body uses the DAV:mkcol/DAV:set extended
// form some servers (e.g. Nextcloud) require instead (spec §4.5).
func BuildMkcalendar(pfx Prefixes, displayName, description, color string, extendedMkcol bool) []byte {
	var props strings.Builder
	if displayName != "" {
		fmt.Fprintf(&props, "<%s:displayname>%s</%s:displayname>", pfx.Dav, esc(displayName), pfx.Dav)
	}
	if description != "" {
		fmt.Fprintf(&props, "<%s:calendar-description>%s</%s:calendar-description>", pfx.CalDAV, esc(description), pfx.CalDAV)
	}
	if color != "" {
		fmt.Fprintf(&props, "<%s:calendar-color xmlns:%s=\"%s\">%s</%s:calendar-color>", pfx.Apple, pfx.Apple, NSApple, esc(color), pfx.Apple)
	}

	var b strings.Builder
	if extendedMkcol {
		fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:mkcol xmlns:%s="%s" xmlns:%s="%s"><%s:set><%s:prop><%s:resourcetype><%s:collection/><%s:calendar/></%s:resourcetype>%s</%s:prop></%s:set></%s:mkcol>`,
			pfx.Dav, pfx.Dav, NSDAV, pfx.CalDAV, NSCalDAV, pfx.Dav, pfx.Dav, pfx.Dav, pfx.Dav, pfx.CalDAV, pfx.Dav, props.String(), pfx.Dav, pfx.Dav, pfx.Dav)
		return []byte(b.String())
	}
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:mkcalendar xmlns:%s="%s" xmlns:%s="%s"><%s:set><%s:prop>%s</%s:prop></%s:set></%s:mkcalendar>`,
		pfx.CalDAV, pfx.Dav, NSDAV, pfx.CalDAV, NSCalDAV, pfx.Dav, pfx.Dav, props.String(), pfx.Dav, pfx.Dav, pfx.CalDAV)
	return []byte(b.String())
}

// BuildACL emits a DAV:acl PROPPATCH/ACL request body (RFC 3744).
func BuildACL(pfx Prefixes, aces []Ace) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:acl xmlns:%s="%s">`, pfx.Dav, pfx.Dav, NSDAV)
	for _, ace := range aces {
		fmt.Fprintf(&b, "<%s:ace><%s:principal>", pfx.Dav, pfx.Dav)
		if ace.PrincipalElem != "" {
			fmt.Fprintf(&b, "<%s:%s/>", pfx.Dav, ace.PrincipalElem)
		} else {
			fmt.Fprintf(&b, "<%s:href>%s</%s:href>", pfx.Dav, esc(ace.Principal), pfx.Dav)
		}
		fmt.Fprintf(&b, "</%s:principal>", pfx.Dav)
		if len(ace.Grant) > 0 {
			fmt.Fprintf(&b, "<%s:grant>", pfx.Dav)
			for _, priv := range ace.Grant {
				fmt.Fprintf(&b, "<%s:privilege><%s:%s/></%s:privilege>", pfx.Dav, pfx.Dav, priv, pfx.Dav)
			}
			fmt.Fprintf(&b, "</%s:grant>", pfx.Dav)
		}
		if len(ace.Deny) > 0 {
			fmt.Fprintf(&b, "<%s:deny>", pfx.Dav)
			for _, priv := range ace.Deny {
				fmt.Fprintf(&b, "<%s:privilege><%s:%s/></%s:privilege>", pfx.Dav, pfx.Dav, priv, pfx.Dav)
			}
			fmt.Fprintf(&b, "</%s:deny>", pfx.Dav)
		}
		fmt.Fprintf(&b, "</%s:ace>", pfx.Dav)
	}
	fmt.Fprintf(&b, "</%s:acl>", pfx.Dav)
	return []byte(b.String())
}

// BuildFreeBusyQuery emits a CALDAV:free-busy-query REPORT body.
func BuildFreeBusyQuery(pfx Prefixes, tr TimeRange) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:free-busy-query xmlns:%s="%s">`, pfx.CalDAV, pfx.CalDAV, NSCalDAV)
	writeTimeRangeAttr(&b, pfx.CalDAV, tr)
	fmt.Fprintf(&b, "</%s:free-busy-query>", pfx.CalDAV)
	return []byte(b.String())
}

// BuildScheduleResponse emits a CALDAV:schedule-response body summarising
// per-recipient iTIP delivery results (RFC 6638 §3.6).
func BuildScheduleResponse(pfx Prefixes, results map[string]string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?><%s:schedule-response xmlns:%s="%s" xmlns:%s="%s">`,
		pfx.CalDAV, pfx.Dav, NSDAV, pfx.CalDAV, NSCalDAV)
	for recipient, status := range results {
		fmt.Fprintf(&b, "<%s:response><%s:recipient><%s:href>%s</%s:href></%s:recipient><%s:request-status>%s</%s:request-status></%s:response>",
			pfx.CalDAV, pfx.CalDAV, pfx.Dav, esc(recipient), pfx.Dav, pfx.CalDAV, pfx.CalDAV, esc(status), pfx.CalDAV, pfx.CalDAV)
	}
	fmt.Fprintf(&b, "</%s:schedule-response>", pfx.CalDAV)
	return []byte(b.String())
}

func writeCompFilter(b *strings.Builder, pfx Prefixes, cf CompFilter) {
	fmt.Fprintf(b, `<%s:comp-filter name="%s">`, pfx.CalDAV, esc(cf.Name))
	if cf.TimeRange != nil {
		writeTimeRangeAttr(b, pfx.CalDAV, *cf.TimeRange)
	}
	for _, pf := range cf.PropFilter {
		writePropFilter(b, pfx, pf)
	}
	for _, child := range cf.CompFilter {
		writeCompFilter(b, pfx, child)
	}
	fmt.Fprintf(b, "</%s:comp-filter>", pfx.CalDAV)
}

func writePropFilter(b *strings.Builder, pfx Prefixes, pf PropFilter) {
	fmt.Fprintf(b, `<%s:prop-filter name="%s">`, pfx.CalDAV, esc(pf.Name))
	if pf.TextMatch != nil {
		writeTextMatch(b, pfx, *pf.TextMatch)
	}
	for _, paf := range pf.ParamFilter {
		writeParamFilter(b, pfx, paf)
	}
	fmt.Fprintf(b, "</%s:prop-filter>", pfx.CalDAV)
}

func writeParamFilter(b *strings.Builder, pfx Prefixes, paf ParamFilter) {
	fmt.Fprintf(b, `<%s:param-filter name="%s">`, pfx.CalDAV, esc(paf.Name))
	if paf.TextMatch != nil {
		writeTextMatch(b, pfx, *paf.TextMatch)
	}
	fmt.Fprintf(b, "</%s:param-filter>", pfx.CalDAV)
}

func writeTextMatch(b *strings.Builder, pfx Prefixes, tm TextMatch) {
	fmt.Fprintf(b, `<%s:text-match`, pfx.CalDAV)
	if tm.Collation != "" {
		fmt.Fprintf(b, ` collation="%s"`, esc(tm.Collation))
	}
	if tm.NegateCondition {
		fmt.Fprintf(b, ` negate-condition="yes"`)
	}
	fmt.Fprintf(b, ">%s</%s:text-match>", esc(tm.Value), pfx.CalDAV)
}

func writeTimeRangeAttr(b *strings.Builder, calDavPfx string, tr TimeRange) {
	fmt.Fprintf(b, `<%s:time-range`, calDavPfx)
	if !tr.Start.IsZero() {
		fmt.Fprintf(b, ` start="%s"`, tr.Start.UTC().Format("20060102T150405Z"))
	}
	if !tr.End.IsZero() {
		fmt.Fprintf(b, ` end="%s"`, tr.End.UTC().Format("20060102T150405Z"))
	}
	b.WriteString("/>")
}
