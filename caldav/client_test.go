package caldav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nyxcal/icaldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(ts.Client(), nil, ts.URL)
	require.NoError(t, err)
	return c
}

func TestGetCapabilitiesParsesHeadersAndCaches(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "OPTIONS", r.Method)
		w.Header().Set("DAV", "1, 2, 3, calendar-access, calendar-auto-schedule")
		w.Header().Set("Allow", "GET, PUT, DELETE, PROPFIND, REPORT")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := newTestClient(t, ts)

	first := c.GetCapabilities(context.Background(), "/", false)
	caps, ok := first.Unwrap()
	require.True(t, ok)
	assert.True(t, caps.DavClasses["calendar-access"])
	assert.Equal(t, 1, calls)

	second := c.GetCapabilities(context.Background(), "/", false)
	_, ok = second.Unwrap()
	require.True(t, ok)
	assert.Equal(t, 1, calls, "cached read must not hit the network")

	third := c.GetCapabilities(context.Background(), "/", true)
	_, ok = third.Unwrap()
	require.True(t, ok)
	assert.Equal(t, 2, calls, "force_refresh must bypass the cache")
}

func TestDiscoverAccountWalksPrincipalHomeSetAndCalendars(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PROPFIND", r.Method)
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
<D:response>
<D:href>/</D:href>
<D:propstat><D:prop><D:current-user-principal><D:href>/principals/bob/</D:href></D:current-user-principal></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
</D:response>
</D:multistatus>`))
		case "/principals/bob/":
			w.Write([]byte(`<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
<D:response>
<D:href>/principals/bob/</D:href>
<D:propstat><D:prop><C:calendar-home-set><D:href>/calendars/bob/</D:href></C:calendar-home-set></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
</D:response>
</D:multistatus>`))
		case "/calendars/bob/":
			w.Write([]byte(`<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
<D:response>
<D:href>/calendars/bob/</D:href>
<D:propstat><D:prop><D:resourcetype><D:collection/></D:resourcetype></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
</D:response>
<D:response>
<D:href>/calendars/bob/home/</D:href>
<D:propstat><D:prop>
<D:resourcetype><D:collection/><C:calendar/></D:resourcetype>
<D:displayname>Home</D:displayname>
<CS:getctag xmlns:CS="http://calendarserver.org/ns/">ctag-1</CS:getctag>
</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
</D:response>
</D:multistatus>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	result := c.DiscoverAccount(context.Background(), ts.URL)
	account, ok := result.Unwrap()
	require.True(t, ok, result.Error())
	assert.Equal(t, "/principals/bob/", account.PrincipalPath)
	assert.Equal(t, "/calendars/bob/", account.CalendarHomeSetURL)
	require.Len(t, account.Calendars, 1)
	assert.Equal(t, "/calendars/bob/home/", account.Calendars[0].Path)
	assert.Equal(t, "Home", account.Calendars[0].Name)
	assert.Equal(t, "ctag-1", account.Calendars[0].CTag)
}

func TestDoTranslatesNonOKStatusToHttpError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("nope"))
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	result := c.GetCapabilities(context.Background(), "/", false)
	_, ok := result.Unwrap()
	require.False(t, ok)
	httpErr, ok := result.Error().(*icaldav.HttpError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestDoRejectsOversizedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(make([]byte, 64))
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	c.MaxResponseBytes = 16
	_, err := c.do(context.Background(), "GET", "/", nil, nil)
	require.Error(t, err)
	httpErr, ok := err.(*icaldav.HttpError)
	require.True(t, ok)
	assert.Equal(t, 413, httpErr.Code)
}

func TestSameCollectionPath(t *testing.T) {
	assert.True(t, sameCollectionPath("/cal/", "/cal"))
	assert.True(t, sameCollectionPath("/cal////", "/cal"))
	assert.False(t, sameCollectionPath("/cal/", "/cal/sub/"))
	assert.True(t, sameCollectionPath("/", "/"))
}
