package dav

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"

	"github.com/covedav/covedav/pkg/store"
)

// EscapePath percent-encodes a logical path for use in an href. Reserved
// characters that are invalid in a raw path ('#', '[', ']', spaces, ...)
// are escaped; path separators are kept.
func EscapePath(p string) string {
	u := url.URL{Path: p}
	return u.EscapedPath()
}

// StatusLine renders a status code as the HTTP status line carried in a
// multi-status entry.
func StatusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

type multistatus struct {
	XMLName   xml.Name   `xml:"D:multistatus"`
	Namespace string     `xml:"xmlns:D,attr"`
	Responses []response `xml:"D:response"`
}

type response struct {
	Href     string     `xml:"D:href"`
	Status   string     `xml:"D:status,omitempty"`
	Propstat []propstat `xml:"D:propstat,omitempty"`
}

type propstat struct {
	Prop   prop   `xml:"D:prop"`
	Status string `xml:"D:status"`
}

type prop struct {
	DisplayName   string        `xml:"D:displayname,omitempty"`
	ResourceType  *resourceType `xml:"D:resourcetype,omitempty"`
	ContentLength *int64        `xml:"D:getcontentlength,omitempty"`
	LastModified  string        `xml:"D:getlastmodified,omitempty"`
	Raw           []rawProp
}

type resourceType struct {
	Collection *struct{} `xml:"D:collection,omitempty"`
}

// rawProp is an arbitrary (possibly foreign-namespaced) empty property
// element, used when echoing back property names from a PROPPATCH body.
type rawProp struct {
	XMLName xml.Name
}

func writeMultistatus(w http.ResponseWriter, ms multistatus) error {
	ms.Namespace = "DAV:"

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(ms)
}

// WriteFailures renders a 207 Multi-Status body with one entry per
// failure record: the resource's escaped URI plus its individual status.
// Callers must only invoke this for a non-empty set; a fully successful
// operation carries no multi-status body at all.
func WriteFailures(w http.ResponseWriter, prefix string, fails *FailureSet) error {
	ms := multistatus{}
	for _, rec := range fails.Records() {
		ms.Responses = append(ms.Responses, response{
			Href:   EscapePath(prefix + rec.Href),
			Status: StatusLine(rec.Status),
		})
	}
	return writeMultistatus(w, ms)
}

// WriteListing renders a PROPFIND 207 body for the given resources with
// the live properties this server exposes.
func WriteListing(w http.ResponseWriter, prefix string, resources []*store.Resource) error {
	ms := multistatus{}

	for _, res := range resources {
		p := prop{
			DisplayName:  res.Name(),
			ResourceType: &resourceType{},
			LastModified: res.ModTime.UTC().Format(http.TimeFormat),
		}
		if res.IsCollection() {
			p.ResourceType.Collection = &struct{}{}
		} else {
			size := res.Size
			p.ContentLength = &size
		}

		href := prefix + res.Path
		if res.IsCollection() && res.Path != "/" {
			href += "/"
		}

		ms.Responses = append(ms.Responses, response{
			Href: EscapePath(href),
			Propstat: []propstat{
				{Prop: p, Status: StatusLine(http.StatusOK)},
			},
		})
	}

	return writeMultistatus(w, ms)
}

// WritePatchRejection renders a 207 body reporting every requested
// property mutation as forbidden. Properties on this server are live and
// read-only.
func WritePatchRejection(w http.ResponseWriter, href string, names []xml.Name) error {
	ps := propstat{Status: StatusLine(http.StatusForbidden)}
	for _, n := range names {
		ps.Prop.Raw = append(ps.Prop.Raw, rawProp{XMLName: n})
	}

	ms := multistatus{
		Responses: []response{
			{Href: EscapePath(href), Propstat: []propstat{ps}},
		},
	}
	return writeMultistatus(w, ms)
}
