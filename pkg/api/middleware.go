package api

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbase/groups-sub003/pkg/core"
	"github.com/kbase/groups-sub003/pkg/httputil"
	"github.com/kbase/groups-sub003/pkg/identity"
	"github.com/kbase/groups-sub003/pkg/observability"
)

var timeNow = time.Now

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestContextMiddleware assigns each request an ID, threads a scoped
// logger through the context and logs the request on completion.
func (s *Server) requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := observability.WithRequestID(r.Context(), requestID)
		ctx = observability.WithLogger(ctx, s.log)

		start := timeNow()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http request")
	})
}

// recoveryMiddleware converts handler panics into 500 responses.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.FromContext(r.Context()).WithFields(map[string]interface{}{
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("panic in handler")
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// token extracts the caller's credential from the Authorization header. A
// "Bearer" prefix is accepted and stripped.
func token(r *http.Request) identity.Token {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	h = strings.TrimPrefix(h, "Bearer ")
	return identity.Token(strings.TrimSpace(h))
}

// requireUser resolves the caller's token to a user name, writing a 401 and
// returning false when the token is absent or invalid.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (core.UserName, bool) {
	t := token(r)
	if t == "" {
		httputil.WriteUnauthorized(w, "no authentication token provided")
		return "", false
	}
	user, err := s.ids.Validate(r.Context(), t)
	if err != nil {
		var authErr *core.AuthenticationError
		if asErr(err, &authErr) {
			httputil.WriteUnauthorized(w, err.Error())
		} else {
			s.logInternal(r, err)
			httputil.WriteInternalError(w, err)
		}
		return "", false
	}
	// record the caller in the request context so later error logs carry it
	*r = *r.WithContext(observability.WithUserID(r.Context(), string(user)))
	return user, true
}

// optionalUser resolves the caller's token when one is present. Anonymous
// callers get an empty user name; an invalid token is still a 401.
func (s *Server) optionalUser(w http.ResponseWriter, r *http.Request) (core.UserName, bool) {
	if token(r) == "" {
		return "", true
	}
	return s.requireUser(w, r)
}
