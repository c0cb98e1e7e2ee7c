package dav

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covedav/covedav/pkg/store"
)

func TestEscapePath(t *testing.T) {
	t.Run("EscapesReservedCharacters", func(t *testing.T) {
		assert.Equal(t, "/a%23b", EscapePath("/a#b"))
		assert.Equal(t, "/a%5Bb%5D", EscapePath("/a[b]"))
		assert.Equal(t, "/with%20space", EscapePath("/with space"))
	})

	t.Run("KeepsPathSeparators", func(t *testing.T) {
		assert.Equal(t, "/a/b/c.txt", EscapePath("/a/b/c.txt"))
	})
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "HTTP/1.1 404 Not Found", StatusLine(http.StatusNotFound))
	assert.Equal(t, "HTTP/1.1 507 Insufficient Storage", StatusLine(http.StatusInsufficientStorage))
}

func TestWriteFailures(t *testing.T) {
	fails := &FailureSet{}
	fails.Add("/dst/bad#1.txt", http.StatusInternalServerError)
	fails.Add("/dst/locked.txt", http.StatusForbidden)

	rec := httptest.NewRecorder()
	require.NoError(t, WriteFailures(rec, "/dav", fails))

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")

	body := rec.Body.String()
	assert.Contains(t, body, `xmlns:D="DAV:"`)
	assert.Contains(t, body, "<D:href>/dav/dst/bad%231.txt</D:href>")
	assert.Contains(t, body, "<D:status>HTTP/1.1 500 Internal Server Error</D:status>")
	assert.Contains(t, body, "<D:href>/dav/dst/locked.txt</D:href>")
	assert.Contains(t, body, "<D:status>HTTP/1.1 403 Forbidden</D:status>")
}

func TestWriteListing(t *testing.T) {
	mod := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	resources := []*store.Resource{
		{Path: "/docs", Kind: store.KindCollection, ModTime: mod},
		{Path: "/docs/a.txt", Kind: store.KindItem, Size: 42, ModTime: mod},
	}

	rec := httptest.NewRecorder()
	require.NoError(t, WriteListing(rec, "", resources))

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	body := rec.Body.String()

	// Collections carry a trailing slash and the collection marker.
	assert.Contains(t, body, "<D:href>/docs/</D:href>")
	assert.Contains(t, body, "<D:collection")

	assert.Contains(t, body, "<D:href>/docs/a.txt</D:href>")
	assert.Contains(t, body, "<D:getcontentlength>42</D:getcontentlength>")
	assert.Contains(t, body, "<D:getlastmodified>Sat, 14 Mar 2026 09:26:53 GMT</D:getlastmodified>")
	assert.Contains(t, body, "<D:status>HTTP/1.1 200 OK</D:status>")
}

func TestWritePatchRejection(t *testing.T) {
	names := []xml.Name{
		{Space: "DAV:", Local: "getlastmodified"},
		{Space: "urn:example", Local: "customprop"},
	}

	rec := httptest.NewRecorder()
	require.NoError(t, WritePatchRejection(rec, "/doc.txt", names))

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<D:href>/doc.txt</D:href>")
	assert.Contains(t, body, "<D:status>HTTP/1.1 403 Forbidden</D:status>")
	assert.Contains(t, body, "getlastmodified")
	assert.Contains(t, body, "customprop")
}
