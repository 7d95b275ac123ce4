package davxml

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/nyxcal/icaldav"
)

// PropStat is one DAV:propstat block: the HTTP status that applies to
// every property named in Props (spec §4.3: "per-propstat status
// tracking").
type PropStat struct {
	StatusCode int
	StatusText string
	Props      map[string]string // local property name -> text/CDATA content
}

// Response is one DAV:response element.
type Response struct {
	Href string
	// Status is set only when the response carries a top-level
	// DAV:status instead of propstat blocks — RFC 6578 sync-collection
	// uses this to mark a deletion (spec §4.3).
	Status     int
	HasStatus  bool
	PropStats  []PropStat
}

// Prop returns the first 2xx value for localName across this
// response's propstat blocks, and whether one was found.
func (r Response) Prop(localName string) (string, bool) {
	for _, ps := range r.PropStats {
		if ps.StatusCode/100 != 2 {
			continue
		}
		if v, ok := ps.Props[localName]; ok {
			return v, true
		}
	}
	return "", false
}

// FailedProperties returns every property present in a non-2xx propstat
// block, keyed by local name (spec §4.3: "failed_properties view").
func (r Response) FailedProperties() map[string]int {
	out := map[string]int{}
	for _, ps := range r.PropStats {
		if ps.StatusCode/100 == 2 {
			continue
		}
		for name := range ps.Props {
			out[name] = ps.StatusCode
		}
	}
	return out
}

// MultiStatus is a parsed DAV:multistatus document.
type MultiStatus struct {
	Responses []Response
	SyncToken string
}

// ParseMultistatus parses a DAV:multistatus response body via a
// streaming, namespace-agnostic pull parser (spec §4.3). It is XXE-safe:
// any leading prolog/DOCTYPE is stripped before the first token is read,
// and encoding/xml itself never resolves external entities; an
// undefined entity reference surfaces as a ParseError rather than an
// expansion.
func ParseMultistatus(data []byte) (*MultiStatus, error) {
	data = stripPrologAndDoctype(data)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	ms := &MultiStatus{}
	var cur *Response
	var curPropStat *PropStat
	var elemStack []string
	var textBuf strings.Builder
	inPropstatProp := false
	var currentPropName string
	var resourcetypeChildren []string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &icaldav.ParseError{Message: "malformed multistatus XML: " + err.Error()}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			local := strings.ToLower(t.Name.Local)
			elemStack = append(elemStack, local)
			textBuf.Reset()
			switch local {
			case "response":
				cur = &Response{}
			case "propstat":
				curPropStat = &PropStat{Props: map[string]string{}}
			case "prop":
				if curPropStat != nil && len(elemStack) >= 2 && elemStack[len(elemStack)-2] == "propstat" {
					inPropstatProp = true
				}
			default:
				if inPropstatProp && curPropStat != nil && len(elemStack) >= 2 && elemStack[len(elemStack)-2] == "prop" {
					currentPropName = local
					if local == "resourcetype" {
						resourcetypeChildren = nil
					}
				} else if inPropstatProp && currentPropName == "resourcetype" && len(elemStack) >= 2 && elemStack[len(elemStack)-2] == "resourcetype" {
					// DAV:resourcetype's value is conveyed as bare child
					// elements (e.g. <D:collection/><C:calendar/>), not
					// text, so its children's local names are recorded
					// here rather than relying on character data.
					resourcetypeChildren = append(resourcetypeChildren, local)
				}
			}
		case xml.CharData:
			textBuf.Write(t)
		case xml.Comment, xml.ProcInst:
			// ignored
		case xml.EndElement:
			local := strings.ToLower(t.Name.Local)
			text := textBuf.String()
			textBuf.Reset()

			switch local {
			case "href":
				decoded := decodeHref(strings.TrimSpace(text))
				if cur != nil && len(elemStack) >= 2 && elemStack[len(elemStack)-2] == "response" {
					cur.Href = decoded
				} else if inPropstatProp && curPropStat != nil && len(elemStack) >= 2 {
					// A single-level wrapper property, e.g.
					// current-user-principal>href or calendar-home-set>href:
					// surface the href as that wrapper property's value.
					curPropStat.Props[elemStack[len(elemStack)-2]] = decoded
				}
			case "status":
				code := parseStatusCode(text)
				if curPropStat != nil && len(elemStack) >= 2 && elemStack[len(elemStack)-2] == "propstat" {
					curPropStat.StatusCode = code
					curPropStat.StatusText = strings.TrimSpace(text)
				} else if cur != nil && len(elemStack) >= 2 && elemStack[len(elemStack)-2] == "response" {
					cur.Status = code
					cur.HasStatus = true
				}
			case "sync-token":
				ms.SyncToken = strings.TrimSpace(text)
			case "prop":
				if inPropstatProp {
					inPropstatProp = false
				}
			case "propstat":
				if cur != nil && curPropStat != nil {
					cur.PropStats = append(cur.PropStats, *curPropStat)
				}
				curPropStat = nil
			case "response":
				if cur != nil {
					ms.Responses = append(ms.Responses, *cur)
				}
				cur = nil
			default:
				if inPropstatProp && curPropStat != nil && currentPropName == local {
					if local == "resourcetype" {
						curPropStat.Props[local] = strings.Join(resourcetypeChildren, " ")
					} else if _, wrapped := curPropStat.Props[local]; !wrapped {
						// Keep the href already recorded for a wrapper property.
						curPropStat.Props[local] = strings.TrimSpace(text)
					}
					currentPropName = ""
				}
			}
			if len(elemStack) > 0 {
				elemStack = elemStack[:len(elemStack)-1]
			}
		}
	}
	return ms, nil
}

func parseStatusCode(statusLine string) int {
	// "HTTP/1.1 200 OK" -> 200
	fields := strings.Fields(strings.TrimSpace(statusLine))
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil && n >= 100 && n < 600 {
			return n
		}
	}
	return 0
}

// decodeHref URL-decodes an href, preserving a literal '+' (spec §4.3).
func decodeHref(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func stripPrologAndDoctype(data []byte) []byte {
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
					data = bytes.TrimLeft(data[i+1:], " \t\r\n")
					return data
				}
			}
		}
	}
	return data
}
