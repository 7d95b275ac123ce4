package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/caldav"
	"github.com/nyxcal/icaldav/ical"
	"github.com/nyxcal/icaldav/quirks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullUsesSyncCollectionWhenTokenHeld(t *testing.T) {
	ft := &fakeTransport{
		syncCollectionFn: func(ctx context.Context, calendarPath, token string, limit int) icaldav.DavResult[*caldav.SyncResult] {
			require.Equal(t, "tok-1", token)
			return icaldav.Ok(&caldav.SyncResult{
				Added: []caldav.EventWithMetadata{
					{Event: &ical.Event{UID: "e1"}, Href: "/cal/e1.ics", ETag: "etag-1"},
				},
				Deleted:      []string{"/cal/gone.ics"},
				NewSyncToken: "tok-2",
			})
		},
	}
	e := New(ft, quirks.Default())
	e.Restore("/cal/", CalendarState{SyncToken: "tok-1", LocalETags: map[string]string{"/cal/gone.ics": "x"}})

	cb := &recordingCallbacks{}
	err := e.Pull(context.Background(), "/cal/", Window{}, cb)
	require.NoError(t, err)

	assert.Equal(t, []string{"/cal/e1.ics"}, cb.added)
	assert.Equal(t, []string{"/cal/gone.ics"}, cb.deleted)
	assert.Equal(t, "tok-2", e.State("/cal/").SyncToken)
}

func TestPullDispatchesModifiedForAlreadyKnownHref(t *testing.T) {
	ft := &fakeTransport{
		syncCollectionFn: func(ctx context.Context, calendarPath, token string, limit int) icaldav.DavResult[*caldav.SyncResult] {
			return icaldav.Ok(&caldav.SyncResult{
				Added: []caldav.EventWithMetadata{
					{Event: &ical.Event{UID: "e1"}, Href: "/cal/e1.ics", ETag: "etag-2"},
				},
				NewSyncToken: "tok-2",
			})
		},
	}
	e := New(ft, quirks.Default())
	e.Restore("/cal/", CalendarState{SyncToken: "tok-1", LocalETags: map[string]string{"/cal/e1.ics": "etag-1"}})

	cb := &recordingCallbacks{}
	require.NoError(t, e.Pull(context.Background(), "/cal/", Window{}, cb))
	assert.Empty(t, cb.added)
	assert.Equal(t, []string{"/cal/e1.ics"}, cb.modified)
}

func TestPullFallsBackToCTagDiffOnInvalidSyncToken(t *testing.T) {
	var ctagCalled, etagsCalled bool
	ft := &fakeTransport{
		syncCollectionFn: func(ctx context.Context, calendarPath, token string, limit int) icaldav.DavResult[*caldav.SyncResult] {
			return icaldav.Err[*caldav.SyncResult](&icaldav.HttpError{Code: 410})
		},
		getCTagFn: func(ctx context.Context, calendarPath string) icaldav.DavResult[string] {
			ctagCalled = true
			return icaldav.Ok("ctag-2")
		},
		fetchETagsFn: func(ctx context.Context, calendarPath string, start, end time.Time) icaldav.DavResult[[]caldav.HrefETag] {
			etagsCalled = true
			return icaldav.Ok([]caldav.HrefETag{{Href: "/cal/e1.ics", ETag: "etag-1"}})
		},
		fetchByHrefFn: func(ctx context.Context, calendarPath string, hrefs []string) icaldav.DavResult[[]caldav.EventWithMetadata] {
			require.Equal(t, []string{"/cal/e1.ics"}, hrefs)
			return icaldav.Ok([]caldav.EventWithMetadata{
				{Event: &ical.Event{UID: "e1"}, Href: "/cal/e1.ics", ETag: "etag-1"},
			})
		},
	}
	e := New(ft, quirks.Default())
	e.Restore("/cal/", CalendarState{SyncToken: "stale-token", CTag: "ctag-1"})

	cb := &recordingCallbacks{}
	require.NoError(t, e.Pull(context.Background(), "/cal/", Window{}, cb))
	assert.True(t, ctagCalled)
	assert.True(t, etagsCalled)
	assert.Equal(t, []string{"/cal/e1.ics"}, cb.added)
	assert.Empty(t, e.State("/cal/").SyncToken)
	assert.Equal(t, "ctag-2", e.State("/cal/").CTag)
}

func TestPullCTagUnchangedSkipsEtagFetch(t *testing.T) {
	ft := &fakeTransport{
		getCTagFn: func(ctx context.Context, calendarPath string) icaldav.DavResult[string] {
			return icaldav.Ok("same-ctag")
		},
		fetchETagsFn: func(ctx context.Context, calendarPath string, start, end time.Time) icaldav.DavResult[[]caldav.HrefETag] {
			t.Fatalf("fetch_etags_in_range should not be called when ctag is unchanged")
			return icaldav.DavResult[[]caldav.HrefETag]{}
		},
	}
	e := New(ft, quirks.Default())
	e.Restore("/cal/", CalendarState{CTag: "same-ctag"})

	cb := &recordingCallbacks{}
	require.NoError(t, e.Pull(context.Background(), "/cal/", Window{}, cb))
	assert.Empty(t, cb.added)
}

func TestPullCTagDiffDispatchesDeletedForMissingHref(t *testing.T) {
	ft := &fakeTransport{
		getCTagFn: func(ctx context.Context, calendarPath string) icaldav.DavResult[string] {
			return icaldav.Ok("ctag-2")
		},
		fetchETagsFn: func(ctx context.Context, calendarPath string, start, end time.Time) icaldav.DavResult[[]caldav.HrefETag] {
			return icaldav.Ok([]caldav.HrefETag{})
		},
	}
	e := New(ft, quirks.Default())
	e.Restore("/cal/", CalendarState{CTag: "ctag-1", LocalETags: map[string]string{"/cal/gone.ics": "etag"}})

	cb := &recordingCallbacks{}
	require.NoError(t, e.Pull(context.Background(), "/cal/", Window{}, cb))
	assert.Equal(t, []string{"/cal/gone.ics"}, cb.deleted)
	assert.NotContains(t, e.State("/cal/").LocalETags, "/cal/gone.ics")
}

func TestPullResolvesAddedHrefsWithoutInlineCalendarData(t *testing.T) {
	ft := &fakeTransport{
		syncCollectionFn: func(ctx context.Context, calendarPath, token string, limit int) icaldav.DavResult[*caldav.SyncResult] {
			return icaldav.Ok(&caldav.SyncResult{
				AddedHrefs:   []caldav.HrefETag{{Href: "/cal/e2.ics", ETag: "etag-2"}},
				NewSyncToken: "tok-2",
			})
		},
		fetchByHrefFn: func(ctx context.Context, calendarPath string, hrefs []string) icaldav.DavResult[[]caldav.EventWithMetadata] {
			return icaldav.Ok([]caldav.EventWithMetadata{
				{Event: &ical.Event{UID: "e2"}, Href: "/cal/e2.ics", ETag: "etag-2"},
			})
		},
	}
	e := New(ft, quirks.Default())
	e.Restore("/cal/", CalendarState{SyncToken: "tok-1"})

	cb := &recordingCallbacks{}
	require.NoError(t, e.Pull(context.Background(), "/cal/", Window{}, cb))
	assert.Equal(t, []string{"/cal/e2.ics"}, cb.added)
}
