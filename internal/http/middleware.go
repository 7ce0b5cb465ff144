package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fincontrol/internal/log"
)

const maxUsernameLength = 150

type ownerKey struct{}

// withOwner resolves the request owner from the trusted identity header set
// by the authenticating proxy, falling back to the configured default owner.
// Requests without an owner are rejected with 401.
func (s *Server) withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		username := sanitizeInput(r.Header.Get(s.ownerHeader))
		if username == "" {
			username = s.defaultOwner
		}
		if username == "" {
			ErrorFor(r, http.StatusUnauthorized, "Usuário não identificado").Write(w)
			return
		}
		if len(username) > maxUsernameLength || strings.ContainsAny(username, "\r\n") {
			ErrorFor(r, http.StatusBadRequest, "Usuário inválido").Write(w)
			return
		}

		ownerID, ok := s.owners.Get(username)
		if !ok {
			id, err := s.repo.EnsureUser(ctx, username)
			if err != nil {
				s.serverError(w, r, "Failed to resolve owner", err)
				return
			}
			ownerID = id
			s.owners.Set(username, ownerID)
		}

		ctx = context.WithValue(ctx, ownerKey{}, ownerID)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldOwner, ownerID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFrom returns the owner id stored by withOwner.
func ownerFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(ownerKey{}).(int64)
	return id
}

// handle registers h under pattern, recording request counts and latency
// labelled by the pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, h))
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	method, path, found := strings.Cut(route, " ")
	if !found {
		method, path = "", route
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m := method
		if m == "" {
			m = r.Method
		}
		s.metrics.ObserveRequest(m, path, rec.status, time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
