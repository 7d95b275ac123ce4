package syncengine

import (
	"context"
	"sync"
	"time"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/caldav"
	"github.com/nyxcal/icaldav/ical"
	"github.com/nyxcal/icaldav/quirks"
	"github.com/rs/zerolog"
)

// Transport is the subset of *caldav.Client the engine drives. Tests
// supply a fake satisfying this instead of standing up an httptest
// server for every pull/push scenario.
type Transport interface {
	SyncCollectionIfSupported(ctx context.Context, calendarPath, token string, limit int) icaldav.DavResult[*caldav.SyncResult]
	GetCTag(ctx context.Context, calendarPath string) icaldav.DavResult[string]
	FetchETagsInRange(ctx context.Context, calendarPath string, start, end time.Time) icaldav.DavResult[[]caldav.HrefETag]
	FetchEventsByHref(ctx context.Context, calendarPath string, hrefs []string) icaldav.DavResult[[]caldav.EventWithMetadata]
	CreateEvent(ctx context.Context, calendarPath string, event *ical.Event) icaldav.DavResult[caldav.PutResult]
	UpdateEvent(ctx context.Context, href string, event *ical.Event, etag string) icaldav.DavResult[string]
	DeleteEvent(ctx context.Context, href, etag string) icaldav.DavResult[struct{}]
}

// ChangeCallbacks is the application's dispatch surface for pull
// results (spec §4.6 step 3). Callbacks for a single calendar are
// delivered in the order the engine observed the changes.
type ChangeCallbacks interface {
	Added(event *ical.Event, href, etag string)
	Modified(event *ical.Event, href, etag string)
	Deleted(href string)
}

// Window bounds the active range fetch_etags_in_range scans during a
// ctag-driven full diff (spec §4.6 step 2).
type Window struct {
	Start, End time.Time
}

// calendarEntry pairs a calendar's tracked state with the mutex that
// serialises pull/push against it (spec §5: "within one calendar,
// writes are serialised").
type calendarEntry struct {
	mu    sync.Mutex
	state *CalendarState
}

// Engine is the offline sync engine of spec §4.6: per-calendar
// operation queueing with coalescing, pull/push reconciliation, and
// pluggable conflict resolution. One Engine may drive many calendars
// concurrently; within a single calendar, Pull and Push exclude each
// other.
type Engine struct {
	client Transport
	quirks quirks.Quirks
	log    zerolog.Logger

	mu        sync.Mutex
	calendars map[string]*calendarEntry
}

// New constructs an Engine bound to client, using q to recognise
// provider-specific sync-token invalidation codes (spec §4.5, §4.6
// step 1).
func New(client Transport, q quirks.Quirks) *Engine {
	return &Engine{
		client:    client,
		quirks:    q,
		log:       zerolog.Nop(),
		calendars: make(map[string]*calendarEntry),
	}
}

// WithLogger attaches a zerolog.Logger to the engine. The engine stores
// it; no code path in this package writes to it.
func (e *Engine) WithLogger(l zerolog.Logger) *Engine {
	e.log = l
	return e
}

func (e *Engine) entry(calendarPath string) *calendarEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	ce, ok := e.calendars[calendarPath]
	if !ok {
		ce = &calendarEntry{state: newCalendarState()}
		e.calendars[calendarPath] = ce
	}
	return ce
}

// State returns a point-in-time copy of calendarPath's tracked state,
// safe to persist (spec §6's "persisted state layout").
func (e *Engine) State(calendarPath string) CalendarState {
	ce := e.entry(calendarPath)
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.state.Snapshot()
}

// Restore seeds calendarPath's state from a previously persisted
// snapshot, e.g. on process startup.
func (e *Engine) Restore(calendarPath string, state CalendarState) {
	ce := e.entry(calendarPath)
	ce.mu.Lock()
	defer ce.mu.Unlock()
	restored := state.Snapshot()
	if restored.LocalETags == nil {
		restored.LocalETags = make(map[string]string)
	}
	ce.state = &restored
}

// Enqueue adds op to calendarPath's pending-operation queue. It does
// not contact the server; the op is applied on the next Push.
func (e *Engine) Enqueue(calendarPath string, op Op) {
	ce := e.entry(calendarPath)
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.state.PendingOps = append(ce.state.PendingOps, op)
}
