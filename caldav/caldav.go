// Package caldav provides a CalDAV client implementing RFC 4791/4918
// plus the RFC 6578 sync-collection and RFC 3744 ACL/RFC 6638
// scheduling extensions (spec §4.4).
package caldav

import (
	"time"

	"github.com/nyxcal/icaldav/capcache"
	"github.com/nyxcal/icaldav/ical"
)

// Calendar is a discovered calendar collection.
type Calendar struct {
	Path                  string
	Name                  string
	Description           string
	MaxResourceSize       int64
	SupportedComponentSet []string
	Color                 string
	Timezone              string
	CTag                  string
	CurrentUserPrivileges []string
}

// Account is the result of discover_account: a principal's calendar
// home set plus the calendars found within it (spec §4.4).
type Account struct {
	PrincipalPath      string
	CalendarHomeSetURL string
	Calendars          []Calendar
}

// EventWithMetadata pairs a parsed event with the server coordinates
// needed for conditional updates (spec §3's EventWithMetadata).
type EventWithMetadata struct {
	Event   *ical.Event
	Href    string
	ETag    string
	RawICal []byte
}

// HrefETag is the bandwidth-only pairing fetch_etags_in_range returns.
type HrefETag struct {
	Href string
	ETag string
}

// PutResult is what create_event/update_event return on success.
type PutResult struct {
	Href string
	ETag string
}

// SyncResult is sync_collection's result shape (spec §4.4).
type SyncResult struct {
	Added       []EventWithMetadata
	Deleted     []string
	NewSyncToken string
	AddedHrefs  []HrefETag
}

// Capabilities bundles the server's advertised feature set, re-exported
// from capcache so callers of this package never need to import it
// directly.
type Capabilities = capcache.ServerCapabilities

// CompFilter is a calendar-query/calendar-multiget time-range and
// component filter (spec §4.3's CompFilter, specialised to the common
// VEVENT/VTODO case callers of this package actually need).
type CompFilter struct {
	Name       string
	Start, End time.Time
}

// Principal is a tagged ACL principal (spec §3).
type Principal struct {
	Kind string // "href", "all", "authenticated", "unauthenticated", "self", "property"
	Href string
	Name string // set when Kind == "property"
}

func HrefPrincipal(href string) Principal        { return Principal{Kind: "href", Href: href} }
func AllPrincipal() Principal                    { return Principal{Kind: "all"} }
func AuthenticatedPrincipal() Principal          { return Principal{Kind: "authenticated"} }
func UnauthenticatedPrincipal() Principal        { return Principal{Kind: "unauthenticated"} }
func SelfPrincipal() Principal                   { return Principal{Kind: "self"} }
func PropertyPrincipal(name string) Principal    { return Principal{Kind: "property", Name: name} }

// Ace is one ACL entry (spec §3).
type Ace struct {
	Principal Principal
	Grant     []string
	Deny      []string
	Inherited string
}

// Acl is an ordered sequence of Ace (spec §3).
type Acl struct {
	Aces []Ace
}

// Privileges enumerated by spec §3.
const (
	PrivRead                       = "read"
	PrivWrite                      = "write"
	PrivWriteProperties            = "write-properties"
	PrivWriteContent               = "write-content"
	PrivUnlock                     = "unlock"
	PrivReadACL                    = "read-acl"
	PrivWriteACL                   = "write-acl"
	PrivReadCurrentUserPrivilegeSet = "read-current-user-privilege-set"
	PrivBind                       = "bind"
	PrivUnbind                     = "unbind"
	PrivAll                        = "all"
)

var allPrivileges = []string{
	PrivRead, PrivWrite, PrivWriteProperties, PrivWriteContent, PrivUnlock,
	PrivReadACL, PrivWriteACL, PrivReadCurrentUserPrivilegeSet, PrivBind, PrivUnbind,
}

// EffectiveGrant expands a "all" grant into every other privilege (spec
// §3: "an ACE granting all implicitly grants every other privilege").
func (a Ace) EffectiveGrant() []string {
	for _, p := range a.Grant {
		if p == PrivAll {
			return allPrivileges
		}
	}
	return a.Grant
}

// SchedulingURLs is discover_scheduling_urls's result (RFC 6638).
type SchedulingURLs struct {
	InboxURL  string
	OutboxURL string
}

// SchedulingResult is send_scheduling_message's per-recipient result.
type SchedulingResult struct {
	RecipientStatus map[string]string
}

// FreeBusyResult is query_free_busy's per-attendee VFREEBUSY result.
type FreeBusyResult struct {
	Attendee string
	Busy     *ical.FreeBusy
}
