// Package quirks isolates the per-provider deviations from RFC 4791/4918
// that real CalDAV servers exhibit (spec §4.5): an immutable capability
// record selected once at client construction, rather than the mutable
// inheritance hierarchies these deviations are usually implemented as.
package quirks

import (
	"strings"

	"github.com/nyxcal/icaldav/davxml"
)

// Quirks is an immutable, shareable set of per-provider corrections. The
// zero value is not valid; use Default or ForHost.
type Quirks struct {
	Name string

	// InvalidSyncTokenCodes is runtime-extensible: applications that
	// observe a new provider-specific invalidation code can add it
	// without a code change (spec §4.5, §9 Open Questions).
	InvalidSyncTokenCodes map[int]bool

	RequiresAppPassword              bool
	SupportsExtendedMkcolOverride     bool
	UseLowercaseReportPrefixes        bool
	SyncCollectionOmitsCalendarData   bool // iCloud: added/changed entries need a follow-up multiget
	PreservesAuthAcrossHostRedirects  bool
	RequiresDirectCalendarAddressing  bool // Radicale: no reliable discovery chain
}

// Default returns the standards-conformant quirks: a 410 Gone response
// is the only sync-token invalidation signal RFC 6578 itself mandates.
func Default() Quirks {
	return Quirks{
		Name:                  "standard",
		InvalidSyncTokenCodes: map[int]bool{410: true},
	}
}

func icloud() Quirks {
	q := Default()
	q.Name = "icloud"
	q.InvalidSyncTokenCodes[403] = true
	q.RequiresAppPassword = true
	q.UseLowercaseReportPrefixes = true
	q.SyncCollectionOmitsCalendarData = true
	q.PreservesAuthAcrossHostRedirects = true
	return q
}

func nextcloud() Quirks {
	q := Default()
	q.Name = "nextcloud"
	q.SupportsExtendedMkcolOverride = true
	return q
}

func baikal() Quirks {
	q := Default()
	q.Name = "baikal"
	q.InvalidSyncTokenCodes[412] = true
	return q
}

func radicale() Quirks {
	q := Default()
	q.Name = "radicale"
	q.RequiresDirectCalendarAddressing = true
	return q
}

// ForHost selects a Quirks value by hostname matching (spec §4.5): "a
// quirks value is selected by hostname matching at client construction".
func ForHost(host string) Quirks {
	h := strings.ToLower(host)
	switch {
	case strings.HasSuffix(h, "icloud.com"):
		return icloud()
	case strings.Contains(h, "nextcloud"):
		return nextcloud()
	case strings.Contains(h, "baikal"):
		return baikal()
	case strings.Contains(h, "radicale"):
		return radicale()
	default:
		return Default()
	}
}

// IsInvalidSyncToken reports whether an HTTP status code returned from a
// sync-collection REPORT means the caller's sync token must be reset.
func (q Quirks) IsInvalidSyncToken(code int) bool {
	return q.InvalidSyncTokenCodes[code]
}

// Prefixes returns the XML namespace prefixes this provider requires for
// calendar-query/calendar-multiget request bodies (hook (b), spec §4.5).
func (q Quirks) Prefixes() davxml.Prefixes {
	if q.UseLowercaseReportPrefixes {
		return davxml.LowercasePrefixes()
	}
	return davxml.DefaultPrefixes()
}

// PostProcessMultistatus applies provider-specific corrections to a
// parsed multistatus response (hook (a), spec §4.5). Currently this only
// covers iCloud's habit of omitting calendar-data for changed entries in
// sync-collection responses, which the caldav package already treats as
// "added_hrefs needing a multiget" independent of this hook; the hook
// exists so future per-provider corrections have a single insertion
// point rather than scattering host checks through the client.
func (q Quirks) PostProcessMultistatus(ms *davxml.MultiStatus) *davxml.MultiStatus {
	return ms
}
