// Package dav implements the document-management protocol pieces that
// need tree recursion: Destination/Depth/Overwrite parsing, the
// copy/move engine with partial-failure accumulation, and multi-status
// response bodies.
package dav

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Depth selects self-only vs. full-subtree scope for a collection
// operation.
type Depth int

const (
	// DepthInfinity covers the full subtree.
	DepthInfinity Depth = -1

	// DepthZero covers the resource itself only.
	DepthZero Depth = 0

	// DepthOne covers the resource and its direct children (listing
	// only; copy accepts 0 or infinity).
	DepthOne Depth = 1
)

var (
	// ErrBadDestination reports a missing or unparsable Destination
	// header (maps to 400).
	ErrBadDestination = errors.New("dav: missing or invalid Destination header")

	// ErrBadDepth reports an unsupported Depth header value (maps to 400).
	ErrBadDepth = errors.New("dav: invalid Depth header")

	// ErrBadOverwrite reports an Overwrite header that is neither T nor F
	// (maps to 400).
	ErrBadOverwrite = errors.New("dav: invalid Overwrite header")
)

// ParseDestination extracts the logical destination path for COPY/MOVE.
// The header may carry an absolute URI (whose host must match the
// request's) or a path; prefix (the mount prefix of the handler) is
// stripped. Required for COPY/MOVE.
func ParseDestination(r *http.Request, prefix string) (string, error) {
	raw := r.Header.Get("Destination")
	if raw == "" {
		return "", ErrBadDestination
	}

	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "", ErrBadDestination
	}
	if u.Host != "" && r.Host != "" && !strings.EqualFold(u.Host, r.Host) {
		return "", ErrBadDestination
	}

	p := u.Path
	if prefix != "" {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			return "", ErrBadDestination
		}
		p = rest
	}

	p = path.Clean("/" + p)
	return p, nil
}

// ParseCopyDepth parses the Depth header for COPY: "0" is a shallow
// copy, absent or "infinity" the full subtree.
func ParseCopyDepth(r *http.Request) (Depth, error) {
	switch strings.ToLower(r.Header.Get("Depth")) {
	case "", "infinity":
		return DepthInfinity, nil
	case "0":
		return DepthZero, nil
	default:
		return DepthZero, ErrBadDepth
	}
}

// ParseListDepth parses the Depth header for PROPFIND, which also allows
// "1".
func ParseListDepth(r *http.Request) (Depth, error) {
	switch strings.ToLower(r.Header.Get("Depth")) {
	case "", "infinity":
		return DepthInfinity, nil
	case "0":
		return DepthZero, nil
	case "1":
		return DepthOne, nil
	default:
		return DepthZero, ErrBadDepth
	}
}

// ParseOverwrite parses the Overwrite header. Overwriting is allowed
// unless explicitly disallowed with "F".
func ParseOverwrite(r *http.Request) (bool, error) {
	switch r.Header.Get("Overwrite") {
	case "", "T", "t":
		return true, nil
	case "F", "f":
		return false, nil
	default:
		return false, ErrBadOverwrite
	}
}
