package store

import (
	"context"
	"io"
	"iter"
	"net/http"
	"time"
)

// ResourceKind distinguishes the two resource variants.
type ResourceKind int

const (
	// KindCollection is a directory-like resource owning child resources.
	KindCollection ResourceKind = iota

	// KindItem is a leaf resource holding byte content and a length.
	KindItem
)

// Resource is a node in the logical tree exposed by a Store.
//
// Path is slash-separated and always relative to the store root ("/" is
// the root collection itself). Size is meaningful for items only.
type Resource struct {
	Path    string
	Kind    ResourceKind
	Size    int64
	ModTime time.Time
}

// IsCollection reports whether the resource owns children.
func (r *Resource) IsCollection() bool {
	return r.Kind == KindCollection
}

// Name returns the last path segment ("" for the root collection).
func (r *Resource) Name() string {
	p := r.Path
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// OperationResult is returned by every mutating store operation.
//
// Status uses HTTP status codes directly since every consumer of this
// interface speaks HTTP:
//   - http.StatusCreated: the name did not previously exist
//   - http.StatusNoContent: the name existed and was overwritten
//   - http.StatusPreconditionFailed: the name existed and overwrite was
//     disallowed (the store fails closed without touching storage)
//   - http.StatusConflict: the target slot cannot hold the resource
//     (e.g. an item in the way of a collection)
type OperationResult struct {
	Status   int
	Resource *Resource
}

// Created reports whether the operation produced a fresh resource.
func (r OperationResult) Created() bool {
	return r.Status == http.StatusCreated
}

// Succeeded reports whether the operation completed.
func (r OperationResult) Succeeded() bool {
	return r.Status == http.StatusCreated || r.Status == http.StatusNoContent
}

// Store maps logical slash-separated paths onto a physical tree rooted at
// a single directory.
//
// Containment is an invariant, not a construction-time check: every path
// an operation receives is canonicalized and verified to lie inside the
// root before the backend is touched, and resolution fails with
// ErrSecurityViolation otherwise.
//
// All operations observe ctx cancellation before mutating the backend, so
// a disconnected client stops in-flight tree mutation promptly.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// The store performs no cross-request locking of its own: concurrent
// requests touching overlapping paths may interleave at the backend.
type Store interface {
	// Resolve maps a logical path to the resource stored there.
	// Returns ErrNotFound when nothing exists at the path and
	// ErrSecurityViolation when the canonicalized path escapes the root.
	Resolve(ctx context.Context, path string) (*Resource, error)

	// GetCollection resolves a path that must name a collection.
	// Absence (ErrNotFound) is a normal outcome; an item in the way
	// yields ErrNotCollection.
	GetCollection(ctx context.Context, path string) (*Resource, error)

	// CreateItem writes an item named name under parent from content.
	// Overwrite semantics follow OperationResult; when the name exists
	// and overwrite is false nothing is written.
	CreateItem(ctx context.Context, parent *Resource, name string, content io.Reader, overwrite bool) (OperationResult, error)

	// CreateCollection creates a collection named name under parent with
	// the same status vocabulary as CreateItem. Overwriting replaces an
	// existing resource of either kind.
	CreateCollection(ctx context.Context, parent *Resource, name string, overwrite bool) (OperationResult, error)

	// DeleteResource removes the named child of parent, recursively for
	// collections. Returns http.StatusNoContent on success and
	// http.StatusNotFound when the name doesn't exist.
	DeleteResource(ctx context.Context, parent *Resource, name string) (int, error)

	// Children lazily enumerates the direct children of a collection.
	// The sequence is finite and not restartable mid-iteration;
	// re-enumeration performs a fresh read of the backend.
	Children(ctx context.Context, col *Resource) iter.Seq2[*Resource, error]

	// OpenItem opens an item's content for reading.
	OpenItem(ctx context.Context, item *Resource) (io.ReadCloser, error)

	// SupportsFastMove reports whether a plain rename into (dst, name)
	// suffices for a move, i.e. source and destination share the same
	// physical store and the target slot is writable under overwrite.
	// Callers use this to choose between a direct rename and a
	// copy-children-then-delete decomposition.
	SupportsFastMove(ctx context.Context, dst *Resource, name string, overwrite bool) bool

	// MoveResource renames src to name under dstParent in a single
	// backend operation. Only valid when SupportsFastMove reported true
	// for the same destination.
	MoveResource(ctx context.Context, src *Resource, dstParent *Resource, name string, overwrite bool) (OperationResult, error)
}
