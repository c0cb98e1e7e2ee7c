package rules

import (
	"context"
	"net/http"
)

// WebDAV method names without stdlib constants.
const (
	MethodPropfind  = "PROPFIND"
	MethodProppatch = "PROPPATCH"
	MethodMkcol     = "MKCOL"
	MethodCopy      = "COPY"
	MethodMove      = "MOVE"
)

// Request is the authorization-relevant slice of an inbound request.
// Destination is set for COPY and MOVE only.
type Request struct {
	Method      string
	Path        string
	Destination string
}

// ExistsFunc probes whether a resource currently exists at a logical
// path. A probe error denies the request (fail-closed); it never allows.
type ExistsFunc func(ctx context.Context, path string) (bool, error)

// Evaluate decides whether the rule set authorizes the request.
//
// The method→capability table is fixed: read-only methods (content
// fetch, listing, capability query) require Read; creating a brand-new
// resource requires Create; modifying an existing one (including
// overwrite via PUT, or property mutation) requires Update; removal
// requires Delete. COPY and MOVE check the destination first (Update
// when a resource exists there, Create otherwise) and deny immediately
// on failure without consulting the source; when the destination check
// passes, Read on the source decides.
//
// Unknown methods and any fault during an existence probe deny.
func (rs *RuleSet) Evaluate(ctx context.Context, req Request, exists ExistsFunc) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, MethodPropfind:
		return rs.PermissionsFor(req.Path).Read

	case http.MethodPut:
		return rs.allowWrite(ctx, req.Path, exists)

	case MethodMkcol:
		return rs.PermissionsFor(req.Path).Create

	case MethodProppatch:
		return rs.PermissionsFor(req.Path).Update

	case http.MethodDelete:
		return rs.PermissionsFor(req.Path).Delete

	case MethodCopy, MethodMove:
		if req.Destination == "" {
			return false
		}
		if !rs.allowWrite(ctx, req.Destination, exists) {
			return false
		}
		return rs.PermissionsFor(req.Path).Read

	default:
		return false
	}
}

// allowWrite decides a write against a path: Update when a resource
// exists there, Create otherwise. Probe faults deny.
func (rs *RuleSet) allowWrite(ctx context.Context, path string, exists ExistsFunc) bool {
	perms := rs.PermissionsFor(path)

	present, err := exists(ctx, path)
	if err != nil {
		return false
	}

	if present {
		return perms.Update
	}
	return perms.Create
}
