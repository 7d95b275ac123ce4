package caldav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetACLDecodesNestedAcesAcrossPrincipalKinds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PROPFIND", r.Method)
		w.Write([]byte(`<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
<D:response>
<D:href>/calendars/bob/home/</D:href>
<D:propstat><D:prop><D:acl>
<D:ace>
<D:principal><D:href>/principals/bob/</D:href></D:principal>
<D:grant><D:privilege><D:all/></D:privilege></D:grant>
</D:ace>
<D:ace>
<D:principal><D:authenticated/></D:principal>
<D:grant><D:privilege><D:read/></D:privilege></D:grant>
<D:deny><D:privilege><D:write/></D:privilege></D:deny>
</D:ace>
</D:acl></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
</D:response>
</D:multistatus>`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	result := c.GetACL(context.Background(), "/calendars/bob/home/")
	acl, ok := result.Unwrap()
	require.True(t, ok, result.Error())
	require.Len(t, acl.Aces, 2)

	assert.Equal(t, "href", acl.Aces[0].Principal.Kind)
	assert.Equal(t, "/principals/bob/", acl.Aces[0].Principal.Href)
	assert.Equal(t, allPrivileges, acl.Aces[0].EffectiveGrant())

	assert.Equal(t, "authenticated", acl.Aces[1].Principal.Kind)
	assert.Equal(t, []string{"read"}, acl.Aces[1].Grant)
	assert.Equal(t, []string{"write"}, acl.Aces[1].Deny)
}

func TestSetACLRejectsPropertyPrincipal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("server should not be contacted for a rejected request")
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	result := c.SetACL(context.Background(), "/calendars/bob/home/", Acl{
		Aces: []Ace{{Principal: PropertyPrincipal("owner"), Grant: []string{PrivRead}}},
	})
	_, ok := result.Unwrap()
	assert.False(t, ok)
}

func TestSetACLEmitsGrantAndDenyForHrefPrincipal(t *testing.T) {
	var body string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ACL", r.Method)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	result := c.SetACL(context.Background(), "/calendars/bob/home/", Acl{
		Aces: []Ace{{
			Principal: HrefPrincipal("/principals/alice/"),
			Grant:     []string{PrivRead, PrivWrite},
		}},
	})
	_, ok := result.Unwrap()
	require.True(t, ok, result.Error())
	assert.Contains(t, body, "/principals/alice/")
	assert.Contains(t, body, "<D:privilege><D:read/></D:privilege>")
	assert.Contains(t, body, "<D:privilege><D:write/></D:privilege>")
}
