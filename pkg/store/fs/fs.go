// Package fs implements the resource store on top of an afero filesystem.
//
// The same implementation serves production (afero.NewOsFs over a user's
// root directory) and tests (afero.NewMemMapFs), which keeps the
// containment and overwrite semantics under test identical to what runs
// in production.
package fs

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/covedav/covedav/pkg/store"
)

// Store exposes a subtree of an afero backend as a logical resource tree.
//
// Every logical path is canonicalized and containment-checked against the
// root on each resolution; the check runs after `.`/`..` normalization so
// traversal sequences cannot slip past it.
type Store struct {
	backend afero.Fs
	root    string
}

// New creates a store rooted at root on the given backend. The root
// directory is created if missing and resolved to an absolute path once.
func New(backend afero.Fs, root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root %q: %w", root, err)
	}

	if err := backend.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root %q: %w", abs, err)
	}

	return &Store{backend: backend, root: abs}, nil
}

// Root returns the absolute root directory the store is bound to.
func (s *Store) Root() string {
	return s.root
}

// normalize canonicalizes a logical path to slash-separated absolute form.
func normalize(logical string) string {
	p := path.Clean("/" + strings.ReplaceAll(logical, "\\", "/"))
	return p
}

// physical maps a logical path onto the backend and enforces containment.
//
// The returned path is equal to, or a separator-bounded descendant of,
// the root; anything else fails with ErrSecurityViolation. filepath.Join
// cleans the combined path, so `.` and `..` segments have already been
// collapsed when the check runs and traversal sequences cannot slip
// past it.
func (s *Store) physical(logical string) (string, error) {
	joined := filepath.Join(s.root, filepath.FromSlash(strings.ReplaceAll(logical, "\\", "/")))

	// A root of "/" already ends in the separator.
	prefix := s.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	if joined != s.root && !strings.HasPrefix(joined, prefix) {
		return "", &store.StoreError{
			Code:    store.ErrSecurityViolation,
			Message: "path escapes store root",
			Path:    logical,
		}
	}

	return joined, nil
}

// resource builds a Resource from a stat result.
func resource(logical string, fi os.FileInfo) *store.Resource {
	r := &store.Resource{
		Path:    normalize(logical),
		Kind:    store.KindItem,
		ModTime: fi.ModTime(),
	}
	if fi.IsDir() {
		r.Kind = store.KindCollection
	} else {
		r.Size = fi.Size()
	}
	return r
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return &store.StoreError{
			Code:    store.ErrInvalidArgument,
			Message: "invalid resource name",
			Path:    name,
		}
	}
	return nil
}

// Resolve implements store.Store.
func (s *Store) Resolve(ctx context.Context, logical string) (*store.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	phys, err := s.physical(logical)
	if err != nil {
		return nil, err
	}

	fi, err := s.backend.Stat(phys)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &store.StoreError{
				Code:    store.ErrNotFound,
				Message: "resource not found",
				Path:    normalize(logical),
			}
		}
		return nil, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("stat failed: %v", err),
			Path:    normalize(logical),
		}
	}

	return resource(logical, fi), nil
}

// GetCollection implements store.Store.
func (s *Store) GetCollection(ctx context.Context, logical string) (*store.Resource, error) {
	res, err := s.Resolve(ctx, logical)
	if err != nil {
		return nil, err
	}

	if !res.IsCollection() {
		return nil, &store.StoreError{
			Code:    store.ErrNotCollection,
			Message: "resource is not a collection",
			Path:    res.Path,
		}
	}

	return res, nil
}

// CreateItem implements store.Store.
func (s *Store) CreateItem(ctx context.Context, parent *store.Resource, name string, content io.Reader, overwrite bool) (store.OperationResult, error) {
	if err := validateName(name); err != nil {
		return store.OperationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.OperationResult{}, err
	}

	logical := path.Join(parent.Path, name)
	phys, err := s.physical(logical)
	if err != nil {
		return store.OperationResult{}, err
	}

	existing, statErr := s.backend.Stat(phys)
	existed := statErr == nil

	// Fails closed: when the name exists and overwriting is disallowed
	// nothing is written.
	if existed && !overwrite {
		return store.OperationResult{Status: http.StatusPreconditionFailed}, nil
	}

	// Replacing a collection with an item removes the whole subtree first.
	if existed && existing.IsDir() {
		if err := s.backend.RemoveAll(phys); err != nil {
			return store.OperationResult{}, &store.StoreError{
				Code:    store.ErrIOError,
				Message: fmt.Sprintf("failed to replace collection: %v", err),
				Path:    logical,
			}
		}
	}

	f, err := s.backend.Create(phys)
	if err != nil {
		return store.OperationResult{}, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("failed to create item: %v", err),
			Path:    logical,
		}
	}

	_, copyErr := io.Copy(f, content)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		// Partial content is left as-is: operations are non-transactional.
		return store.OperationResult{}, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("failed to write item content: %v", copyErr),
			Path:    logical,
		}
	}

	res, err := s.Resolve(ctx, logical)
	if err != nil {
		return store.OperationResult{}, err
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusNoContent
	}
	return store.OperationResult{Status: status, Resource: res}, nil
}

// CreateCollection implements store.Store.
func (s *Store) CreateCollection(ctx context.Context, parent *store.Resource, name string, overwrite bool) (store.OperationResult, error) {
	if err := validateName(name); err != nil {
		return store.OperationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.OperationResult{}, err
	}

	logical := path.Join(parent.Path, name)
	phys, err := s.physical(logical)
	if err != nil {
		return store.OperationResult{}, err
	}

	existing, statErr := s.backend.Stat(phys)
	existed := statErr == nil

	if existed && !overwrite {
		return store.OperationResult{Status: http.StatusPreconditionFailed}, nil
	}

	if existed {
		if existing.IsDir() {
			// Overwriting a collection with a collection keeps it.
			res, err := s.Resolve(ctx, logical)
			if err != nil {
				return store.OperationResult{}, err
			}
			return store.OperationResult{Status: http.StatusNoContent, Resource: res}, nil
		}
		if err := s.backend.RemoveAll(phys); err != nil {
			return store.OperationResult{}, &store.StoreError{
				Code:    store.ErrIOError,
				Message: fmt.Sprintf("failed to replace item: %v", err),
				Path:    logical,
			}
		}
	}

	if err := s.backend.Mkdir(phys, 0755); err != nil {
		return store.OperationResult{}, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("failed to create collection: %v", err),
			Path:    logical,
		}
	}

	res, err := s.Resolve(ctx, logical)
	if err != nil {
		return store.OperationResult{}, err
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusNoContent
	}
	return store.OperationResult{Status: status, Resource: res}, nil
}

// DeleteResource implements store.Store. Collections are removed
// recursively.
func (s *Store) DeleteResource(ctx context.Context, parent *store.Resource, name string) (int, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logical := path.Join(parent.Path, name)
	phys, err := s.physical(logical)
	if err != nil {
		return 0, err
	}

	if _, err := s.backend.Stat(phys); err != nil {
		if os.IsNotExist(err) {
			return http.StatusNotFound, nil
		}
		return 0, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("stat failed: %v", err),
			Path:    logical,
		}
	}

	if err := s.backend.RemoveAll(phys); err != nil {
		return 0, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("failed to delete resource: %v", err),
			Path:    logical,
		}
	}

	return http.StatusNoContent, nil
}

// Children implements store.Store. Each enumeration performs a fresh
// directory read.
func (s *Store) Children(ctx context.Context, col *store.Resource) iter.Seq2[*store.Resource, error] {
	return func(yield func(*store.Resource, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		phys, err := s.physical(col.Path)
		if err != nil {
			yield(nil, err)
			return
		}

		entries, err := afero.ReadDir(s.backend, phys)
		if err != nil {
			yield(nil, &store.StoreError{
				Code:    store.ErrIOError,
				Message: fmt.Sprintf("failed to read collection: %v", err),
				Path:    col.Path,
			})
			return
		}

		for _, fi := range entries {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(resource(path.Join(col.Path, fi.Name()), fi), nil) {
				return
			}
		}
	}
}

// OpenItem implements store.Store.
func (s *Store) OpenItem(ctx context.Context, item *store.Resource) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if item.IsCollection() {
		return nil, &store.StoreError{
			Code:    store.ErrIsCollection,
			Message: "collections have no content",
			Path:    item.Path,
		}
	}

	phys, err := s.physical(item.Path)
	if err != nil {
		return nil, err
	}

	f, err := s.backend.Open(phys)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &store.StoreError{
				Code:    store.ErrNotFound,
				Message: "resource not found",
				Path:    item.Path,
			}
		}
		return nil, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("failed to open item: %v", err),
			Path:    item.Path,
		}
	}

	return f, nil
}

// SupportsFastMove implements store.Store. Source and destination always
// share this store's backend, so a rename suffices unless the target slot
// is occupied and overwriting is disallowed.
func (s *Store) SupportsFastMove(ctx context.Context, dst *store.Resource, name string, overwrite bool) bool {
	if err := ctx.Err(); err != nil {
		return false
	}

	if overwrite {
		return true
	}

	phys, err := s.physical(path.Join(dst.Path, name))
	if err != nil {
		return false
	}

	_, err = s.backend.Stat(phys)
	return os.IsNotExist(err)
}

// MoveResource implements store.Store as a single backend rename.
func (s *Store) MoveResource(ctx context.Context, src *store.Resource, dstParent *store.Resource, name string, overwrite bool) (store.OperationResult, error) {
	if err := validateName(name); err != nil {
		return store.OperationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.OperationResult{}, err
	}

	srcPhys, err := s.physical(src.Path)
	if err != nil {
		return store.OperationResult{}, err
	}

	logical := path.Join(dstParent.Path, name)
	dstPhys, err := s.physical(logical)
	if err != nil {
		return store.OperationResult{}, err
	}

	_, statErr := s.backend.Stat(dstPhys)
	existed := statErr == nil

	if existed && !overwrite {
		return store.OperationResult{Status: http.StatusPreconditionFailed}, nil
	}

	if existed {
		if err := s.backend.RemoveAll(dstPhys); err != nil {
			return store.OperationResult{}, &store.StoreError{
				Code:    store.ErrIOError,
				Message: fmt.Sprintf("failed to replace destination: %v", err),
				Path:    logical,
			}
		}
	}

	if err := s.backend.Rename(srcPhys, dstPhys); err != nil {
		return store.OperationResult{}, &store.StoreError{
			Code:    store.ErrIOError,
			Message: fmt.Sprintf("rename failed: %v", err),
			Path:    src.Path,
		}
	}

	res, err := s.Resolve(ctx, logical)
	if err != nil {
		return store.OperationResult{}, err
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusNoContent
	}
	return store.OperationResult{Status: status, Resource: res}, nil
}
