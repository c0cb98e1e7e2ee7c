package dav

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(t *testing.T, headers map[string]string) *http.Request {
	t.Helper()
	r := httptest.NewRequest("COPY", "/src", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestParseDestination(t *testing.T) {
	t.Run("AcceptsAbsoluteURI", func(t *testing.T) {
		r := request(t, map[string]string{"Destination": "http://example.com/docs/copy.txt"})
		p, err := ParseDestination(r, "")
		require.NoError(t, err)
		assert.Equal(t, "/docs/copy.txt", p)
	})

	t.Run("AcceptsPathForm", func(t *testing.T) {
		r := request(t, map[string]string{"Destination": "/docs/copy.txt"})
		p, err := ParseDestination(r, "")
		require.NoError(t, err)
		assert.Equal(t, "/docs/copy.txt", p)
	})

	t.Run("StripsMountPrefix", func(t *testing.T) {
		r := request(t, map[string]string{"Destination": "/dav/docs/copy.txt"})
		p, err := ParseDestination(r, "/dav")
		require.NoError(t, err)
		assert.Equal(t, "/docs/copy.txt", p)
	})

	t.Run("RejectsForeignHost", func(t *testing.T) {
		r := request(t, map[string]string{"Destination": "http://elsewhere.example.net/docs/copy.txt"})
		_, err := ParseDestination(r, "")
		assert.ErrorIs(t, err, ErrBadDestination)
	})

	t.Run("HostComparisonIsCaseInsensitive", func(t *testing.T) {
		r := request(t, map[string]string{"Destination": "http://EXAMPLE.COM/docs/copy.txt"})
		p, err := ParseDestination(r, "")
		require.NoError(t, err)
		assert.Equal(t, "/docs/copy.txt", p)
	})

	t.Run("RejectsDestinationOutsidePrefix", func(t *testing.T) {
		r := request(t, map[string]string{"Destination": "/elsewhere/copy.txt"})
		_, err := ParseDestination(r, "/dav")
		assert.ErrorIs(t, err, ErrBadDestination)
	})

	t.Run("MissingHeaderFails", func(t *testing.T) {
		r := request(t, nil)
		_, err := ParseDestination(r, "")
		assert.ErrorIs(t, err, ErrBadDestination)
	})
}

func TestParseCopyDepth(t *testing.T) {
	t.Run("DefaultsToInfinity", func(t *testing.T) {
		d, err := ParseCopyDepth(request(t, nil))
		require.NoError(t, err)
		assert.Equal(t, DepthInfinity, d)
	})

	t.Run("AcceptsZero", func(t *testing.T) {
		d, err := ParseCopyDepth(request(t, map[string]string{"Depth": "0"}))
		require.NoError(t, err)
		assert.Equal(t, DepthZero, d)
	})

	t.Run("RejectsOne", func(t *testing.T) {
		_, err := ParseCopyDepth(request(t, map[string]string{"Depth": "1"}))
		assert.ErrorIs(t, err, ErrBadDepth)
	})
}

func TestParseListDepth(t *testing.T) {
	d, err := ParseListDepth(request(t, map[string]string{"Depth": "1"}))
	require.NoError(t, err)
	assert.Equal(t, DepthOne, d)

	_, err = ParseListDepth(request(t, map[string]string{"Depth": "2"}))
	assert.ErrorIs(t, err, ErrBadDepth)
}

func TestParseOverwrite(t *testing.T) {
	t.Run("DefaultsToAllowed", func(t *testing.T) {
		ov, err := ParseOverwrite(request(t, nil))
		require.NoError(t, err)
		assert.True(t, ov)
	})

	t.Run("FDisallows", func(t *testing.T) {
		ov, err := ParseOverwrite(request(t, map[string]string{"Overwrite": "F"}))
		require.NoError(t, err)
		assert.False(t, ov)
	})

	t.Run("RejectsOtherValues", func(t *testing.T) {
		_, err := ParseOverwrite(request(t, map[string]string{"Overwrite": "yes"}))
		assert.ErrorIs(t, err, ErrBadOverwrite)
	})
}
