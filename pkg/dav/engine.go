package dav

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/covedav/covedav/pkg/store"
)

// Engine orchestrates recursive copy and move over a Store, aggregating
// per-node failures into a FailureSet.
//
// Traversal is strictly sequential depth-first, never fan-out parallel:
// failure ordering stays deterministic and one client action never holds
// more than one backend operation in flight. Failure semantics are
// non-transactional: a failure in a subtree does not undo completed
// sibling operations.
type Engine struct {
	store store.Store
}

// NewEngine creates an engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Result is the outcome of a top-level copy or move: either a single
// terminal status, or 207 with the accumulated failures.
type Result struct {
	Status   int
	Failures *FailureSet
}

// StatusFromError translates a store fault into the protocol status
// recorded or returned for it. Unanticipated faults map to 500.
func StatusFromError(err error) int {
	var se *store.StoreError
	if errors.As(err, &se) {
		switch se.Code {
		case store.ErrNotFound:
			return http.StatusNotFound
		case store.ErrSecurityViolation:
			return http.StatusForbidden
		case store.ErrAlreadyExists:
			return http.StatusPreconditionFailed
		case store.ErrNotCollection, store.ErrIsCollection:
			return http.StatusConflict
		case store.ErrInvalidArgument:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// canceled reports whether err stems from the caller's cancellation
// signal. Cancellation stops traversal promptly without synthesizing
// failures for unattempted nodes.
func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Copy performs a recursive copy of src to dst.
//
// The state machine is Validate → Resolve → Traverse → Respond: the
// destination must not equal the source under case-insensitive
// comparison nor lie inside its subtree (403); the destination parent
// must be a collection (409); the source must exist (404); an occupied
// destination with overwrite disallowed fails closed (412) before any
// traversal. With Depth 0 a collection is copied shallow.
func (e *Engine) Copy(ctx context.Context, src, dst string, depth Depth, overwrite bool) (Result, error) {
	dstParent, name, srcRes, dstExisted, result, err := e.resolve(ctx, src, dst, overwrite)
	if err != nil || result != nil {
		return orEmpty(result), err
	}

	fails := &FailureSet{}
	if err := e.copyNode(ctx, srcRes, dstParent, name, dst, depth, overwrite, fails); err != nil {
		return Result{}, err
	}

	return respond(fails, dstExisted), nil
}

// Move performs a recursive move of src to dst. Depth is always the full
// subtree for moves, regardless of the request header.
func (e *Engine) Move(ctx context.Context, src, dst string, overwrite bool) (Result, error) {
	dstParent, name, srcRes, dstExisted, result, err := e.resolve(ctx, src, dst, overwrite)
	if err != nil || result != nil {
		return orEmpty(result), err
	}

	srcParent, err := e.store.GetCollection(ctx, path.Dir(srcRes.Path))
	if err != nil {
		return Result{}, err
	}

	fails := &FailureSet{}
	if err := e.moveNode(ctx, srcRes, srcParent, dstParent, name, dst, overwrite, fails); err != nil {
		return Result{}, err
	}

	return respond(fails, dstExisted), nil
}

// resolve runs the shared Validate and Resolve phases. A non-nil Result
// short-circuits the operation with a terminal status.
func (e *Engine) resolve(ctx context.Context, src, dst string, overwrite bool) (dstParent *store.Resource, name string, srcRes *store.Resource, dstExisted bool, result *Result, err error) {
	// A destination inside the source subtree would re-enumerate the
	// nodes the traversal just created and never terminate.
	if strings.EqualFold(src, dst) || withinSubtree(dst, src) {
		return nil, "", nil, false, &Result{Status: http.StatusForbidden}, nil
	}

	parentPath, leaf := path.Split(dst)
	if leaf == "" {
		return nil, "", nil, false, &Result{Status: http.StatusForbidden}, nil
	}

	dstParent, err = e.store.GetCollection(ctx, path.Clean(parentPath))
	if err != nil {
		var se *store.StoreError
		if errors.As(err, &se) && (se.Code == store.ErrNotFound || se.Code == store.ErrNotCollection) {
			return nil, "", nil, false, &Result{Status: http.StatusConflict}, nil
		}
		return nil, "", nil, false, nil, err
	}

	srcRes, err = e.store.Resolve(ctx, src)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, "", nil, false, &Result{Status: http.StatusNotFound}, nil
		}
		return nil, "", nil, false, nil, err
	}

	if _, err := e.store.Resolve(ctx, dst); err == nil {
		dstExisted = true
	} else if !store.IsNotFound(err) {
		return nil, "", nil, false, nil, err
	}

	// Fails closed before any traversal touches storage.
	if dstExisted && !overwrite {
		return nil, "", nil, false, &Result{Status: http.StatusPreconditionFailed}, nil
	}

	return dstParent, leaf, srcRes, dstExisted, nil, nil
}

// withinSubtree reports whether p is a separator-bounded descendant of
// root, under the same case-insensitive comparison used for the
// source-equals-destination rule.
func withinSubtree(p, root string) bool {
	if root == "/" {
		return p != "/"
	}
	return len(p) > len(root) && p[len(root)] == '/' && strings.EqualFold(p[:len(root)], root)
}

func orEmpty(r *Result) Result {
	if r == nil {
		return Result{}
	}
	return *r
}

// respond assembles the Respond phase: 207 when any node failed,
// otherwise the single terminal status of the top-level operation.
func respond(fails *FailureSet, dstExisted bool) Result {
	if !fails.Empty() {
		return Result{Status: http.StatusMultiStatus, Failures: fails}
	}
	if dstExisted {
		return Result{Status: http.StatusNoContent}
	}
	return Result{Status: http.StatusCreated}
}

// copyNode copies one node into (parent, name). On a non-success status
// the node's destination URI is recorded and the branch is pruned; its
// children are not attempted. dstPath is the node's computed destination
// path used for failure records.
func (e *Engine) copyNode(ctx context.Context, node, parent *store.Resource, name, dstPath string, depth Depth, overwrite bool, fails *FailureSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !node.IsCollection() {
		return e.copyItem(ctx, node, parent, name, dstPath, overwrite, fails)
	}

	res, err := e.store.CreateCollection(ctx, parent, name, overwrite)
	if err != nil {
		if canceled(err) {
			return err
		}
		fails.Add(dstPath, StatusFromError(err))
		return nil
	}
	if !res.Succeeded() {
		fails.Add(dstPath, res.Status)
		return nil
	}

	if depth == DepthZero {
		return nil
	}
	childDepth := depth
	if childDepth > 0 {
		childDepth--
	}

	for child, err := range e.store.Children(ctx, node) {
		if err != nil {
			if canceled(err) {
				return err
			}
			fails.Add(dstPath, StatusFromError(err))
			return nil
		}
		if err := e.copyNode(ctx, child, res.Resource, child.Name(), path.Join(dstPath, child.Name()), childDepth, overwrite, fails); err != nil {
			return err
		}
	}

	return nil
}

// copyItem streams one item's content into (parent, name).
func (e *Engine) copyItem(ctx context.Context, node, parent *store.Resource, name, dstPath string, overwrite bool, fails *FailureSet) error {
	content, err := e.store.OpenItem(ctx, node)
	if err != nil {
		if canceled(err) {
			return err
		}
		fails.Add(dstPath, StatusFromError(err))
		return nil
	}

	res, err := e.store.CreateItem(ctx, parent, name, content, overwrite)
	_ = content.Close()
	if err != nil {
		if canceled(err) {
			return err
		}
		fails.Add(dstPath, StatusFromError(err))
		return nil
	}
	if !res.Succeeded() {
		fails.Add(dstPath, res.Status)
	}
	return nil
}

// moveNode moves one node into (parent, name).
//
// When the store reports fast-move capability a single rename suffices
// (items included). Otherwise collections decompose: create the
// destination collection, move every child into it, then delete the
// emptied source; the source collection is kept whenever any descendant
// failed to move, so failed children remain reachable at the source.
func (e *Engine) moveNode(ctx context.Context, node, srcParent, dstParent *store.Resource, name, dstPath string, overwrite bool, fails *FailureSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.store.SupportsFastMove(ctx, dstParent, name, overwrite) {
		res, err := e.store.MoveResource(ctx, node, dstParent, name, overwrite)
		if err != nil {
			if canceled(err) {
				return err
			}
			fails.Add(dstPath, StatusFromError(err))
			return nil
		}
		if !res.Succeeded() {
			fails.Add(dstPath, res.Status)
		}
		return nil
	}

	if !node.IsCollection() {
		// Slow path for an item: stream copy, then delete the source.
		before := fails.Len()
		if err := e.copyItem(ctx, node, dstParent, name, dstPath, overwrite, fails); err != nil {
			return err
		}
		if fails.Len() > before {
			return nil
		}
		return e.deleteSource(ctx, node, srcParent, fails)
	}

	res, err := e.store.CreateCollection(ctx, dstParent, name, overwrite)
	if err != nil {
		if canceled(err) {
			return err
		}
		fails.Add(dstPath, StatusFromError(err))
		return nil
	}
	if !res.Succeeded() {
		fails.Add(dstPath, res.Status)
		return nil
	}

	before := fails.Len()
	for child, err := range e.store.Children(ctx, node) {
		if err != nil {
			if canceled(err) {
				return err
			}
			fails.Add(dstPath, StatusFromError(err))
			return nil
		}
		if err := e.moveNode(ctx, child, node, res.Resource, child.Name(), path.Join(dstPath, child.Name()), overwrite, fails); err != nil {
			return err
		}
	}

	// Only delete the source collection when the whole subtree moved;
	// otherwise failed children must remain at the source.
	if fails.Len() == before {
		return e.deleteSource(ctx, node, srcParent, fails)
	}
	return nil
}

// deleteSource removes a moved node from its source parent, recording a
// failure against the source URI when the delete fails.
func (e *Engine) deleteSource(ctx context.Context, node, srcParent *store.Resource, fails *FailureSet) error {
	status, err := e.store.DeleteResource(ctx, srcParent, node.Name())
	if err != nil {
		if canceled(err) {
			return err
		}
		fails.Add(node.Path, StatusFromError(err))
		return nil
	}
	if status != http.StatusNoContent {
		fails.Add(node.Path, status)
	}
	return nil
}
