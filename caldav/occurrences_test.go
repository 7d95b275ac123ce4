package caldav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recurringEventWithOverrideICal = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:weekly@example.com
DTSTART:20260105T100000Z
DTEND:20260105T110000Z
SUMMARY:Weekly sync
RRULE:FREQ=WEEKLY;COUNT=3
END:VEVENT
BEGIN:VEVENT
UID:weekly@example.com
RECURRENCE-ID:20260112T100000Z
DTSTART:20260112T130000Z
DTEND:20260112T140000Z
SUMMARY:Weekly sync (moved)
END:VEVENT
END:VCALENDAR
`

func TestFetchOccurrencesExpandsRecurringMasterAndAppliesOverride(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
<D:response>
<D:href>/calendars/bob/home/weekly.ics</D:href>
<D:propstat><D:prop>
<D:getetag>"etag-1"</D:getetag>
<C:calendar-data>` + recurringEventWithOverrideICal + `</C:calendar-data>
</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
</D:response>
</D:multistatus>`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	result := c.FetchOccurrences(context.Background(), "/calendars/bob/home/", start, end)
	occurrences, ok := result.Unwrap()
	require.True(t, ok, result.Error())
	require.Len(t, occurrences, 3)

	assert.Equal(t, "20260105T100000Z", occurrences[0].Event.DTStart.Timestamp.Format("20060102T150405Z"))
	assert.Equal(t, "Weekly sync (moved)", occurrences[1].Event.Summary)
	assert.Equal(t, "20260112T130000Z", occurrences[1].Event.DTStart.Timestamp.Format("20060102T150405Z"))
	assert.Equal(t, "20260119T100000Z", occurrences[2].Event.DTStart.Timestamp.Format("20060102T150405Z"))

	for _, occ := range occurrences {
		assert.Equal(t, "/calendars/bob/home/weekly.ics", occ.Href)
		assert.Equal(t, "etag-1", occ.ETag)
	}
}
