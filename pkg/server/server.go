// Package server exposes principals' resource trees over HTTP.
//
// It owns routing, authentication middleware and the per-method
// handlers; tree recursion happens in pkg/dav and all storage access
// goes through the authenticated principal's store.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/covedav/covedav/internal/logger"
	"github.com/covedav/covedav/pkg/identity"
	"github.com/covedav/covedav/pkg/rules"
)

// CORSConfig controls cross-origin resource sharing.
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	Credentials    bool
}

// Config contains the HTTP server settings.
type Config struct {
	// Address is the interface to bind ("" binds all)
	Address string

	// Port is the TCP port to listen on
	Port int

	// Prefix is the URL prefix the tree is mounted under ("" for root)
	Prefix string

	// TLSCertFile/TLSKeyFile enable TLS when both are set
	TLSCertFile string
	TLSKeyFile  string

	// CORS configures cross-origin behavior
	CORS CORSConfig

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration
}

// Server serves the document-management protocol for a registry of
// principals.
//
// The registry and each principal's rule set and store are read-only
// after configuration load; each inbound request is an independent unit
// of work and the server adds no cross-request locking. Operation-level
// timeouts are the caller's responsibility; the server only propagates
// request cancellation into in-flight traversals.
type Server struct {
	cfg      Config
	registry *identity.Registry
}

// New creates a server over the given principal registry.
func New(cfg Config, registry *identity.Registry) *Server {
	return &Server{cfg: cfg, registry: registry}
}

// Handler assembles the routing and middleware chain. Exposed separately
// from Serve so tests can drive the full chain through httptest.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID, s.logRequests, s.authenticate)

	route := func(method string, h http.HandlerFunc) {
		r.PathPrefix("/").Methods(method).HandlerFunc(h)
	}

	route(http.MethodOptions, s.handleOptions)
	route(http.MethodGet, s.handleGet)
	route(http.MethodHead, s.handleGet)
	route(http.MethodPut, s.handlePut)
	route(http.MethodDelete, s.handleDelete)
	route(rules.MethodMkcol, s.handleMkcol)
	route(rules.MethodPropfind, s.handlePropfind)
	route(rules.MethodProppatch, s.handleProppatch)
	route(rules.MethodCopy, s.handleCopy)
	route(rules.MethodMove, s.handleMove)

	var h http.Handler = r
	if s.cfg.CORS.Enabled {
		opts := []handlers.CORSOption{
			handlers.AllowedOrigins(s.cfg.CORS.AllowedOrigins),
			handlers.AllowedMethods(s.cfg.CORS.AllowedMethods),
			handlers.AllowedHeaders(s.cfg.CORS.AllowedHeaders),
		}
		if s.cfg.CORS.Credentials {
			opts = append(opts, handlers.AllowCredentials())
		}
		h = handlers.CORS(opts...)(h)
	}

	return handlers.RecoveryHandler()(h)
}

// Serve runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			logger.Info("Listening on https://%s%s", addr, s.cfg.Prefix)
			err = srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			logger.Info("Listening on http://%s%s", addr, s.cfg.Prefix)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}

		logger.Info("Server stopped gracefully")
		return <-errCh

	case err := <-errCh:
		return err
	}
}
