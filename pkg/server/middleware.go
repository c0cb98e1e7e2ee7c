package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/covedav/covedav/internal/logger"
	"github.com/covedav/covedav/pkg/identity"
)

type contextKey int

const (
	principalKey contextKey = iota
	requestIDKey
)

// principalFrom returns the authenticated principal stored on the
// request context by the authenticate middleware.
func principalFrom(r *http.Request) *identity.Principal {
	p, _ := r.Context().Value(principalKey).(*identity.Principal)
	return p
}

// requestID tags every request with an X-Request-Id, honoring one the
// client already supplied.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		id, _ := r.Context().Value(requestIDKey).(string)
		logger.Debug("%s %s -> %d (%v) [%s]", r.Method, r.URL.Path, rec.status, time.Since(start), id)
	})
}

// authenticate resolves the Basic credential to a principal and stores
// it on the request context. Unauthenticated and invalid requests
// receive a challenge naming the configured realm.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			s.challenge(w)
			return
		}

		p, err := s.registry.Authenticate(username, password)
		if err != nil {
			logger.Info("Authentication failed for %q from %s", username, r.RemoteAddr)
			s.challenge(w)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", s.registry.Realm()))
	http.Error(w, "Authorization required", http.StatusUnauthorized)
}
