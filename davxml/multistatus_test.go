package davxml

import (
	"strings"
	"testing"
)

func TestParseMultistatusPerPropstatStatus(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/cal/event1.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"abc123"</d:getetag>
        <cal:calendar-data>BEGIN:VCALENDAR\nEND:VCALENDAR</cal:calendar-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
    <d:propstat>
      <d:prop>
        <d:displayname/>
      </d:prop>
      <d:status>HTTP/1.1 404 Not Found</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	ms, err := ParseMultistatus([]byte(body))
	if err != nil {
		t.Fatalf("ParseMultistatus: %v", err)
	}
	if len(ms.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(ms.Responses))
	}
	resp := ms.Responses[0]
	if resp.Href != "/cal/event1.ics" {
		t.Fatalf("unexpected href: %q", resp.Href)
	}
	etag, ok := resp.Prop("getetag")
	if !ok || etag != `"abc123"` {
		t.Fatalf("expected getetag, got %q ok=%v", etag, ok)
	}
	if _, ok := resp.Prop("displayname"); ok {
		t.Fatalf("404 property must not be promoted into Prop()")
	}
	failed := resp.FailedProperties()
	if code, ok := failed["displayname"]; !ok || code != 404 {
		t.Fatalf("expected displayname in FailedProperties with 404, got %v ok=%v", code, ok)
	}
}

func TestParseMultistatusSyncCollectionDeletionMarker(t *testing.T) {
	body := `<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/cal/deleted.ics</d:href>
    <d:status>HTTP/1.1 404 Not Found</d:status>
  </d:response>
  <d:sync-token>token-123</d:sync-token>
</d:multistatus>`

	ms, err := ParseMultistatus([]byte(body))
	if err != nil {
		t.Fatalf("ParseMultistatus: %v", err)
	}
	if len(ms.Responses) != 1 || !ms.Responses[0].HasStatus || ms.Responses[0].Status != 404 {
		t.Fatalf("expected a top-level 404 deletion marker, got %+v", ms.Responses)
	}
	if ms.SyncToken != "token-123" {
		t.Fatalf("expected sync token to be captured, got %q", ms.SyncToken)
	}
}

func TestParseMultistatusXXERejected(t *testing.T) {
	body := `<?xml version="1.0"?>
<!DOCTYPE d:multistatus [<!ENTITY x SYSTEM "file:///etc/passwd">]>
<d:multistatus xmlns:d="DAV:">
  <d:response><d:href>&x;</d:href></d:response>
</d:multistatus>`

	ms, err := ParseMultistatus([]byte(body))
	if err == nil {
		if len(ms.Responses) > 0 && strings.Contains(ms.Responses[0].Href, "root:") {
			t.Fatalf("entity appears to have been expanded to file contents")
		}
		return
	}
	// An error is also an acceptable outcome: the undefined entity
	// reference is rejected rather than resolved.
}

func TestParseMultistatusResourcetypeCapturesBareChildElements(t *testing.T) {
	body := `<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/calendars/bob/home/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><cal:calendar/></d:resourcetype>
        <d:displayname>Home</d:displayname>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	ms, err := ParseMultistatus([]byte(body))
	if err != nil {
		t.Fatalf("ParseMultistatus: %v", err)
	}
	if len(ms.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(ms.Responses))
	}
	resType, ok := ms.Responses[0].Prop("resourcetype")
	if !ok || !strings.Contains(resType, "calendar") || !strings.Contains(resType, "collection") {
		t.Fatalf("expected resourcetype to report both bare child elements, got %q ok=%v", resType, ok)
	}
	name, _ := ms.Responses[0].Prop("displayname")
	if name != "Home" {
		t.Fatalf("expected displayname to still be captured by text, got %q", name)
	}
}

func TestDecodeHrefPreservesLiteralPlus(t *testing.T) {
	got := decodeHref("/cal/a+b%20c.ics")
	if got != "/cal/a+b c.ics" {
		t.Fatalf("expected literal + preserved and %%20 decoded, got %q", got)
	}
}

func TestBuildCalendarQueryUsesRequestedPrefixCase(t *testing.T) {
	out := string(BuildCalendarQuery(LowercasePrefixes(), []string{"getetag"}, []string{"calendar-data"}, CompFilter{
		Name: "VCALENDAR",
		CompFilter: []CompFilter{{
			Name: "VEVENT",
		}},
	}))
	if !strings.Contains(out, "<c:calendar-query") {
		t.Fatalf("expected lowercase c: prefix, got:\n%s", out)
	}
	if strings.Contains(out, "<C:") {
		t.Fatalf("did not expect uppercase C: prefix when LowercasePrefixes is requested:\n%s", out)
	}
}
