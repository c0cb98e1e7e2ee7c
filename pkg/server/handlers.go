package server

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/covedav/covedav/internal/logger"
	"github.com/covedav/covedav/pkg/dav"
	"github.com/covedav/covedav/pkg/identity"
	"github.com/covedav/covedav/pkg/rules"
	"github.com/covedav/covedav/pkg/store"
)

// logical maps the request URL onto the principal's logical path space,
// stripping the configured mount prefix.
func (s *Server) logical(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Path
	if s.cfg.Prefix != "" {
		rest, ok := strings.CutPrefix(p, s.cfg.Prefix)
		if !ok {
			http.Error(w, "Not Found", http.StatusNotFound)
			return "", false
		}
		p = rest
	}
	return path.Clean("/" + p), true
}

// existsProbe adapts a store to the rule engine's existence probe.
// Probe faults propagate so the engine can deny fail-closed.
func existsProbe(st store.Store) rules.ExistsFunc {
	return func(ctx context.Context, p string) (bool, error) {
		if _, err := st.Resolve(ctx, p); err != nil {
			if store.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
}

// authorize runs the principal's rule set against the request. Denial is
// decided before any mutation; the request aborts cleanly with 403.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, p *identity.Principal, reqPath, destination string) bool {
	req := rules.Request{Method: r.Method, Path: reqPath, Destination: destination}
	if !p.Rules.Evaluate(r.Context(), req, existsProbe(p.Store)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// storeError translates a store fault into a protocol status at the
// handler boundary. Only truly unanticipated faults surface as 500.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	status := dav.StatusFromError(err)
	if status == http.StatusInternalServerError {
		logger.Error("Unexpected fault: %v", err)
	}
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	reqPath, ok := s.logical(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, p, reqPath, "") {
		return
	}

	w.Header().Set("DAV", "1")
	w.Header().Set("MS-Author-Via", "DAV")
	w.Header().Set("Allow", "OPTIONS, GET, HEAD, PUT, DELETE, MKCOL, PROPFIND, PROPPATCH, COPY, MOVE")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	reqPath, ok := s.logical(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, p, reqPath, "") {
		return
	}

	res, err := p.Store.Resolve(r.Context(), reqPath)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if res.IsCollection() {
		w.Header().Set("Allow", "OPTIONS, DELETE, PROPFIND, COPY, MOVE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	content, err := p.Store.OpenItem(r.Context(), res)
	if err != nil {
		s.storeError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	ctype := mime.TypeByExtension(path.Ext(res.Path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)

	if rs, ok := content.(io.ReadSeeker); ok {
		http.ServeContent(w, r, res.Name(), res.ModTime, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.Header().Set("Last-Modified", res.ModTime.UTC().Format(http.TimeFormat))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, content); err != nil {
		logger.Debug("Streaming %s aborted: %v", res.Path, err)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	reqPath, ok := s.logical(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, p, reqPath, "") {
		return
	}

	// Uploading over a collection is a conflict, not an overwrite.
	if existing, err := p.Store.Resolve(r.Context(), reqPath); err == nil {
		if existing.IsCollection() {
			http.Error(w, "Conflict", http.StatusConflict)
			return
		}
	} else if !store.IsNotFound(err) {
		s.storeError(w, err)
		return
	}

	parent, err := p.Store.GetCollection(r.Context(), path.Dir(reqPath))
	if err != nil {
		if store.IsNotFound(err) {
			http.Error(w, "Conflict", http.StatusConflict)
			return
		}
		s.storeError(w, err)
		return
	}

	result, err := p.Store.CreateItem(r.Context(), parent, path.Base(reqPath), r.Body, true)
	if err != nil {
		s.storeError(w, err)
		return
	}

	w.WriteHeader(result.Status)
}

func (s *Server) handleMkcol(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	reqPath, ok := s.logical(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, p, reqPath, "") {
		return
	}

	// MKCOL request bodies are not supported.
	if r.ContentLength > 0 {
		http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}

	if _, err := p.Store.Resolve(r.Context(), reqPath); err == nil {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	} else if !store.IsNotFound(err) {
		s.storeError(w, err)
		return
	}

	parent, err := p.Store.GetCollection(r.Context(), path.Dir(reqPath))
	if err != nil {
		if store.IsNotFound(err) {
			http.Error(w, "Conflict", http.StatusConflict)
			return
		}
		s.storeError(w, err)
		return
	}

	result, err := p.Store.CreateCollection(r.Context(), parent, path.Base(reqPath), false)
	if err != nil {
		s.storeError(w, err)
		return
	}

	w.WriteHeader(result.Status)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	reqPath, ok := s.logical(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, p, reqPath, "") {
		return
	}

	if reqPath == "/" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if _, err := p.Store.Resolve(r.Context(), reqPath); err != nil {
		s.storeError(w, err)
		return
	}

	parent, err := p.Store.GetCollection(r.Context(), path.Dir(reqPath))
	if err != nil {
		s.storeError(w, err)
		return
	}

	status, err := p.Store.DeleteResource(r.Context(), parent, path.Base(reqPath))
	if err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(status)
}

func (s *Server) handlePropfind(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	reqPath, ok := s.logical(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, p, reqPath, "") {
		return
	}

	depth, err := dav.ParseListDepth(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	res, err := p.Store.Resolve(r.Context(), reqPath)
	if err != nil {
		s.storeError(w, err)
		return
	}

	var resources []*store.Resource
	if err := collect(r.Context(), p.Store, res, depth, &resources); err != nil {
		s.storeError(w, err)
		return
	}

	if err := dav.WriteListing(w, s.cfg.Prefix, resources); err != nil {
		logger.Debug("Writing listing for %s aborted: %v", reqPath, err)
	}
}

// collect gathers a resource and, depth permitting, its descendants
// depth-first in enumeration order.
func collect(ctx context.Context, st store.Store, res *store.Resource, depth dav.Depth, out *[]*store.Resource) error {
	*out = append(*out, res)

	if !res.IsCollection() || depth == dav.DepthZero {
		return nil
	}
	childDepth := depth
	if childDepth > 0 {
		childDepth--
	}

	for child, err := range st.Children(ctx, res) {
		if err != nil {
			return err
		}
		if err := collect(ctx, st, child, childDepth, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleProppatch(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	reqPath, ok := s.logical(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, p, reqPath, "") {
		return
	}

	if _, err := p.Store.Resolve(r.Context(), reqPath); err != nil {
		s.storeError(w, err)
		return
	}

	names, err := parsePropertyNames(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// All exposed properties are live; mutation is uniformly rejected.
	if err := dav.WritePatchRejection(w, s.cfg.Prefix+reqPath, names); err != nil {
		logger.Debug("Writing proppatch response for %s aborted: %v", reqPath, err)
	}
}

// parsePropertyNames extracts the property names a PROPPATCH body asks
// to set or remove.
func parsePropertyNames(r io.Reader) ([]xml.Name, error) {
	dec := xml.NewDecoder(r)
	var names []xml.Name
	inProp := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "prop" {
				inProp = true
				continue
			}
			if inProp {
				names = append(names, t.Name)
				if err := dec.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "prop" {
				inProp = false
			}
		}
	}
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	src, ok := s.logical(w, r)
	if !ok {
		return
	}

	dst, err := dav.ParseDestination(r, s.cfg.Prefix)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	depth, err := dav.ParseCopyDepth(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	overwrite, err := dav.ParseOverwrite(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !s.authorize(w, r, p, src, dst) {
		return
	}

	result, err := dav.NewEngine(p.Store).Copy(r.Context(), src, dst, depth, overwrite)
	s.respondResult(w, result, err)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	src, ok := s.logical(w, r)
	if !ok {
		return
	}

	dst, err := dav.ParseDestination(r, s.cfg.Prefix)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	overwrite, err := dav.ParseOverwrite(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !s.authorize(w, r, p, src, dst) {
		return
	}

	result, err := dav.NewEngine(p.Store).Move(r.Context(), src, dst, overwrite)
	s.respondResult(w, result, err)
}

// respondResult writes a copy/move outcome: 207 with one entry per
// failed resource, or the single terminal status.
func (s *Server) respondResult(w http.ResponseWriter, result dav.Result, err error) {
	if err != nil {
		s.storeError(w, err)
		return
	}

	if result.Status == http.StatusMultiStatus {
		if err := dav.WriteFailures(w, s.cfg.Prefix, result.Failures); err != nil {
			logger.Debug("Writing multi-status body aborted: %v", err)
		}
		return
	}

	w.WriteHeader(result.Status)
}
