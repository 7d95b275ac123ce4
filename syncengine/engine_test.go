package syncengine

import (
	"context"
	"time"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/caldav"
	"github.com/nyxcal/icaldav/ical"
)

// fakeTransport is a hand-rolled Transport double: each method is
// backed by an overridable func field, defaulting to "not called in
// this test" if left nil and invoked.
type fakeTransport struct {
	syncCollectionFn   func(ctx context.Context, calendarPath, token string, limit int) icaldav.DavResult[*caldav.SyncResult]
	getCTagFn          func(ctx context.Context, calendarPath string) icaldav.DavResult[string]
	fetchETagsFn       func(ctx context.Context, calendarPath string, start, end time.Time) icaldav.DavResult[[]caldav.HrefETag]
	fetchByHrefFn      func(ctx context.Context, calendarPath string, hrefs []string) icaldav.DavResult[[]caldav.EventWithMetadata]
	createEventFn      func(ctx context.Context, calendarPath string, event *ical.Event) icaldav.DavResult[caldav.PutResult]
	updateEventFn      func(ctx context.Context, href string, event *ical.Event, etag string) icaldav.DavResult[string]
	deleteEventFn      func(ctx context.Context, href, etag string) icaldav.DavResult[struct{}]
}

func (f *fakeTransport) SyncCollectionIfSupported(ctx context.Context, calendarPath, token string, limit int) icaldav.DavResult[*caldav.SyncResult] {
	return f.syncCollectionFn(ctx, calendarPath, token, limit)
}

func (f *fakeTransport) GetCTag(ctx context.Context, calendarPath string) icaldav.DavResult[string] {
	return f.getCTagFn(ctx, calendarPath)
}

func (f *fakeTransport) FetchETagsInRange(ctx context.Context, calendarPath string, start, end time.Time) icaldav.DavResult[[]caldav.HrefETag] {
	return f.fetchETagsFn(ctx, calendarPath, start, end)
}

func (f *fakeTransport) FetchEventsByHref(ctx context.Context, calendarPath string, hrefs []string) icaldav.DavResult[[]caldav.EventWithMetadata] {
	return f.fetchByHrefFn(ctx, calendarPath, hrefs)
}

func (f *fakeTransport) CreateEvent(ctx context.Context, calendarPath string, event *ical.Event) icaldav.DavResult[caldav.PutResult] {
	return f.createEventFn(ctx, calendarPath, event)
}

func (f *fakeTransport) UpdateEvent(ctx context.Context, href string, event *ical.Event, etag string) icaldav.DavResult[string] {
	return f.updateEventFn(ctx, href, event, etag)
}

func (f *fakeTransport) DeleteEvent(ctx context.Context, href, etag string) icaldav.DavResult[struct{}] {
	return f.deleteEventFn(ctx, href, etag)
}

// recordingCallbacks captures dispatched changes in observed order for
// assertions.
type recordingCallbacks struct {
	added    []string
	modified []string
	deleted  []string
}

func (r *recordingCallbacks) Added(event *ical.Event, href, etag string) { r.added = append(r.added, href) }
func (r *recordingCallbacks) Modified(event *ical.Event, href, etag string) {
	r.modified = append(r.modified, href)
}
func (r *recordingCallbacks) Deleted(href string) { r.deleted = append(r.deleted, href) }
