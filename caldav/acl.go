package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/davxml"
)

// GetACL implements get_acl: a PROPFIND for DAV:acl, decoded into the
// tagged Principal/Privilege model (spec §3, §4.4, RFC 3744).
//
// DAV:acl nests one ace per principal with its own grant/deny privilege
// sets, which the generic flat multistatus.Response.Prop model can't
// represent, so this decodes the response with struct-tag encoding/xml
// rather than reusing davxml.ParseMultistatus.
func (c *Client) GetACL(ctx context.Context, href string) icaldav.DavResult[Acl] {
	body := davxml.BuildPropfind(davxml.DefaultPrefixes(), []string{"acl"})
	headers := map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        "0",
	}
	rr, err := c.do(ctx, "PROPFIND", href, headers, body)
	if err != nil {
		return icaldav.Err[Acl](err)
	}
	acl, perr := parseACLResponse(rr.Body)
	if perr != nil {
		return icaldav.Err[Acl](perr)
	}
	return icaldav.Ok(*acl)
}

// SetACL implements set_acl: an ACL request carrying the caller's Aces
// (spec §4.4, RFC 3744).
func (c *Client) SetACL(ctx context.Context, href string, acl Acl) icaldav.DavResult[struct{}] {
	aces := make([]davxml.Ace, 0, len(acl.Aces))
	for _, ace := range acl.Aces {
		da := davxml.Ace{Grant: ace.Grant, Deny: ace.Deny}
		switch ace.Principal.Kind {
		case "href":
			da.Principal = ace.Principal.Href
		case "all":
			da.PrincipalElem = "all"
		case "authenticated":
			da.PrincipalElem = "authenticated"
		case "unauthenticated":
			da.PrincipalElem = "unauthenticated"
		case "self":
			da.PrincipalElem = "self"
		case "property":
			// RFC 3744 property principals aren't expressible via the
			// bare-element form davxml.Ace supports; fall back to an
			// href-less principal is not meaningful here, so this ACE
			// is rejected rather than silently dropped.
			return icaldav.Err[struct{}](&icaldav.ValidationError{
				Message: "set_acl: property principals are not supported",
			})
		}
		aces = append(aces, da)
	}

	body := davxml.BuildACL(davxml.DefaultPrefixes(), aces)
	headers := map[string]string{"Content-Type": "application/xml; charset=utf-8"}
	_, err := c.do(ctx, "ACL", href, headers, body)
	if err != nil {
		return icaldav.Err[struct{}](err)
	}
	return icaldav.Ok(struct{}{})
}

type xmlAny struct {
	XMLName xml.Name
}

type aceXML struct {
	Principal struct {
		Href     string `xml:"href"`
		All      *struct{} `xml:"all"`
		Auth     *struct{} `xml:"authenticated"`
		Unauth   *struct{} `xml:"unauthenticated"`
		Self     *struct{} `xml:"self"`
		Property *struct {
			Any xmlAny `xml:",any"`
		} `xml:"property"`
	} `xml:"principal"`
	Grant *struct {
		Privilege []struct {
			Any xmlAny `xml:",any"`
		} `xml:"privilege"`
	} `xml:"grant"`
	Deny *struct {
		Privilege []struct {
			Any xmlAny `xml:",any"`
		} `xml:"privilege"`
	} `xml:"deny"`
	Inherited *struct {
		Href string `xml:"href"`
	} `xml:"inherited"`
}

type aclPropXML struct {
	ACL *struct {
		Ace []aceXML `xml:"ace"`
	} `xml:"acl"`
}

type aclPropstatXML struct {
	Prop   aclPropXML `xml:"prop"`
	Status string     `xml:"status"`
}

type aclResponseXML struct {
	Href     string           `xml:"href"`
	Propstat []aclPropstatXML `xml:"propstat"`
}

type aclMultistatusXML struct {
	XMLName  xml.Name         `xml:"multistatus"`
	Response []aclResponseXML `xml:"response"`
}

func parseACLResponse(body []byte) (*Acl, error) {
	data := stripACLPrologAndDoctype(body)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var doc aclMultistatusXML
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, &icaldav.ParseError{Message: "malformed acl response: " + err.Error()}
	}

	acl := &Acl{}
	for _, resp := range doc.Response {
		for _, ps := range resp.Propstat {
			if code := parseStatusLine(ps.Status); code != 0 && code/100 != 2 {
				continue
			}
			if ps.Prop.ACL == nil {
				continue
			}
			for _, ace := range ps.Prop.ACL.Ace {
				acl.Aces = append(acl.Aces, decodeAce(ace))
			}
		}
	}
	return acl, nil
}

func decodeAce(ace aceXML) Ace {
	out := Ace{}
	switch {
	case ace.Principal.Href != "":
		out.Principal = HrefPrincipal(ace.Principal.Href)
	case ace.Principal.All != nil:
		out.Principal = AllPrincipal()
	case ace.Principal.Auth != nil:
		out.Principal = AuthenticatedPrincipal()
	case ace.Principal.Unauth != nil:
		out.Principal = UnauthenticatedPrincipal()
	case ace.Principal.Self != nil:
		out.Principal = SelfPrincipal()
	case ace.Principal.Property != nil:
		out.Principal = PropertyPrincipal(ace.Principal.Property.Any.XMLName.Local)
	}
	if ace.Grant != nil {
		for _, p := range ace.Grant.Privilege {
			out.Grant = append(out.Grant, p.Any.XMLName.Local)
		}
	}
	if ace.Deny != nil {
		for _, p := range ace.Deny.Privilege {
			out.Deny = append(out.Deny, p.Any.XMLName.Local)
		}
	}
	if ace.Inherited != nil {
		out.Inherited = ace.Inherited.Href
	}
	return out
}

func parseStatusLine(line string) int {
	for _, f := range strings.Fields(strings.TrimSpace(line)) {
		if n, err := strconv.Atoi(f); err == nil && n >= 100 && n < 600 {
			return n
		}
	}
	return 0
}

func stripACLPrologAndDoctype(data []byte) []byte {
	data = bytes.TrimLeft(data, "\xEF\xBB\xBF \t\r\n")
	if bytes.HasPrefix(data, []byte("<?xml")) {
		if i := bytes.Index(data, []byte("?>")); i >= 0 {
			data = bytes.TrimLeft(data[i+2:], " \t\r\n")
		}
	}
	if bytes.HasPrefix(data, []byte("<!DOCTYPE")) || bytes.HasPrefix(data, []byte("<!doctype")) {
		depth := 0
		for i := 0; i < len(data); i++ {
			switch data[i] {
			case '[':
				depth++
			case ']':
				depth--
			case '>':
				if depth <= 0 {
					return bytes.TrimLeft(data[i+1:], " \t\r\n")
				}
			}
		}
	}
	return data
}
