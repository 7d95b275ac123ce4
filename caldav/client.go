package caldav

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/capcache"
	"github.com/nyxcal/icaldav/davxml"
	"github.com/nyxcal/icaldav/quirks"
	"github.com/rs/zerolog"
)

const (
	mimeType = "text/calendar"

	// DefaultConnectTimeout and DefaultReadTimeout are spec §5's defaults.
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second

	// DefaultMaxResponseBytes bounds a single response body (spec §5).
	DefaultMaxResponseBytes = 10 << 20

	userAgent = "iCalDAV/1"
)

// Client is a CalDAV client bound to one server (spec §4.4).
type Client struct {
	http  icaldav.HTTPClient
	auth  icaldav.AuthProvider
	base  *url.URL
	q     quirks.Quirks
	caps  *capcache.Cache
	log   zerolog.Logger

	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	MaxResponseBytes int64
	UserAgent        string
}

// NewClient constructs a Client against endpoint, selecting quirks by
// the endpoint's hostname (spec §4.5) and sharing a capability cache
// across calendars on that client (spec §4.7).
func NewClient(hc icaldav.HTTPClient, auth icaldav.AuthProvider, endpoint string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &icaldav.ValidationError{Message: "invalid endpoint: " + err.Error()}
	}
	return &Client{
		http:             hc,
		auth:             auth,
		base:             u,
		q:                quirks.ForHost(u.Hostname()),
		caps:             capcache.New(capcache.DefaultTTL, capcache.DefaultMaxEntries),
		log:              zerolog.Nop(),
		ConnectTimeout:   DefaultConnectTimeout,
		ReadTimeout:      DefaultReadTimeout,
		MaxResponseBytes: DefaultMaxResponseBytes,
		UserAgent:        userAgent,
	}, nil
}

// WithLogger attaches a zerolog.Logger to the client. The client stores
// it; no code path in this package writes to it.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.log = l
	return c
}

func (c *Client) resolve(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	return c.base.ResolveReference(u).String()
}

// rawResponse is what the low-level transport returns before any
// multistatus/iCal decoding: status, headers, and the (size-capped)
// body.
type rawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// do issues a single HTTP request and translates transport failures
// into icaldav.NetworkError and non-2xx statuses into icaldav.HttpError
// (spec §5, §7). Callers that need to tolerate a specific non-2xx
// status (e.g. 404 on delete) inspect the returned *icaldav.HttpError
// directly.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body []byte) (*rawResponse, error) {
	timeout := c.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), bodyReader)
	if err != nil {
		return nil, &icaldav.NetworkError{Cause: icaldav.CauseUnknown, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			return nil, &icaldav.NetworkError{Cause: icaldav.CauseUnknown, Err: err}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	limit := c.MaxResponseBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}
	limited := io.LimitReader(resp.Body, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err)
	}
	if int64(len(data)) > limit {
		return nil, &icaldav.HttpError{Code: 413, Message: "response too large"}
	}

	rr := &rawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode/100 != 2 {
		return rr, &icaldav.HttpError{Code: resp.StatusCode, Message: httpStatusSnippet(data)}
	}
	return rr, nil
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return userAgent
}

func (c *Client) classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return &icaldav.NetworkError{Cause: icaldav.CauseCancelled, Err: err}
	}
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return &icaldav.NetworkError{Cause: icaldav.CauseTimeout, Err: err}
	}
	return &icaldav.NetworkError{Cause: icaldav.CauseConnection, Err: err}
}

func httpStatusSnippet(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// propfind issues a DAV:propfind request and parses the multistatus
// response.
func (c *Client) propfind(ctx context.Context, path string, depth int, props []string) (*davxml.MultiStatus, error) {
	body := davxml.BuildPropfind(davxml.DefaultPrefixes(), props)
	headers := map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        strconv.Itoa(depth),
	}
	rr, err := c.do(ctx, "PROPFIND", path, headers, body)
	if err != nil {
		return nil, err
	}
	return c.parseMultistatus(rr.Body)
}

func (c *Client) report(ctx context.Context, path string, depth int, body []byte) (*davxml.MultiStatus, error) {
	headers := map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        strconv.Itoa(depth),
	}
	rr, err := c.do(ctx, "REPORT", path, headers, body)
	if err != nil {
		return nil, err
	}
	return c.parseMultistatus(rr.Body)
}

func (c *Client) parseMultistatus(body []byte) (*davxml.MultiStatus, error) {
	ms, err := davxml.ParseMultistatus(body)
	if err != nil {
		return nil, err
	}
	return c.q.PostProcessMultistatus(ms), nil
}

// GetCapabilities implements get_capabilities: an OPTIONS request,
// cached per server_url with force_refresh bypassing the read but still
// refreshing the cache on success (spec §4.4, §4.7).
func (c *Client) GetCapabilities(ctx context.Context, path string, force bool) icaldav.DavResult[Capabilities] {
	key := c.resolve(path)
	if !force {
		if cached, ok := c.caps.Get(key); ok {
			return icaldav.Ok(cached)
		}
	}

	rr, err := c.do(ctx, "OPTIONS", path, nil, nil)
	if err != nil {
		return icaldav.Err[Capabilities](err)
	}

	davHeader := rr.Header.Get("DAV")
	allow := rr.Header.Get("Allow")
	caps := capcache.ServerCapabilities{
		DavClasses:     capcache.ParseDavHeader(davHeader),
		AllowedMethods: capcache.ParseDavHeader(allow),
		RawDavHeader:   davHeader,
		DiscoveredAt:   time.Now(),
	}
	c.caps.Set(key, caps)
	return icaldav.Ok[Capabilities](caps)
}

// DiscoverAccount implements discover_account: current-user-principal
// (a PROPFIND of the client endpoint's root "/") → calendar-home-set →
// calendar collections. serverURL is not used, and no RFC 6764
// /.well-known/caldav lookup or redirect is made.
func (c *Client) DiscoverAccount(ctx context.Context, serverURL string) icaldav.DavResult[Account] {
	principal, err := c.findCurrentUserPrincipal(ctx)
	if err != nil {
		return icaldav.Err[Account](err)
	}

	homeSet, err := c.findCalendarHomeSet(ctx, principal)
	if err != nil {
		return icaldav.Err[Account](err)
	}

	calendars, err := c.findCalendars(ctx, homeSet)
	if err != nil {
		return icaldav.Err[Account](err)
	}

	return icaldav.Ok(Account{
		PrincipalPath:      principal,
		CalendarHomeSetURL: homeSet,
		Calendars:          calendars,
	})
}

func (c *Client) findCurrentUserPrincipal(ctx context.Context) (string, error) {
	ms, err := c.propfind(ctx, "/", 0, []string{"current-user-principal"})
	if err != nil {
		return "", err
	}
	if len(ms.Responses) == 0 {
		return "", &icaldav.ParseError{Message: "discover_account: no response for current-user-principal"}
	}
	href, ok := ms.Responses[0].Prop("current-user-principal")
	if !ok {
		return "", &icaldav.ParseError{Message: "discover_account: current-user-principal not found"}
	}
	return href, nil
}

func (c *Client) findCalendarHomeSet(ctx context.Context, principal string) (string, error) {
	ms, err := c.propfind(ctx, principal, 0, []string{"calendar-home-set"})
	if err != nil {
		return "", err
	}
	if len(ms.Responses) == 0 {
		return "", &icaldav.ParseError{Message: "discover_account: no response for calendar-home-set"}
	}
	href, ok := ms.Responses[0].Prop("calendar-home-set")
	if !ok {
		return "", &icaldav.ParseError{Message: "discover_account: calendar-home-set not found"}
	}
	return href, nil
}

func (c *Client) findCalendars(ctx context.Context, homeSet string) ([]Calendar, error) {
	props := []string{
		"resourcetype", "displayname", "calendar-description",
		"max-resource-size", "supported-calendar-component-set",
		"calendar-color", "calendar-timezone", "getctag",
		"current-user-privilege-set",
	}
	ms, err := c.propfind(ctx, homeSet, 1, props)
	if err != nil {
		return nil, err
	}

	var calendars []Calendar
	for _, resp := range ms.Responses {
		if sameCollectionPath(resp.Href, homeSet) {
			continue
		}
		resType, _ := resp.Prop("resourcetype")
		if !strings.Contains(resType, "calendar") {
			continue
		}
		cal := Calendar{Path: resp.Href}
		cal.Name, _ = resp.Prop("displayname")
		cal.Description, _ = resp.Prop("calendar-description")
		if sz, ok := resp.Prop("max-resource-size"); ok {
			if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
				cal.MaxResourceSize = n
			}
		}
		cal.Color, _ = resp.Prop("calendar-color")
		cal.Timezone, _ = resp.Prop("calendar-timezone")
		cal.CTag, _ = resp.Prop("getctag")
		calendars = append(calendars, cal)
	}
	return calendars, nil
}

func sameCollectionPath(a, b string) bool {
	trim := func(s string) string {
		if s == "" || s == "/" {
			return s
		}
		return strings.TrimRight(s, "/")
	}
	return trim(a) == trim(b)
}
