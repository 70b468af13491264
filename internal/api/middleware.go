package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tfttracker/internal/apperr"
	"tfttracker/internal/data"
)

type ctxKey int

const requestIDKey ctxKey = iota

var errUnauthenticated = apperr.New(apperr.CodeUnauthenticated, "Could not validate credentials")

// statusRecorder captures the response status for access logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLogger tags each request with an id and logs its outcome
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

			log.WithFields(logrus.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"duration":   time.Since(start).String(),
			}).Info("request")
		})
	}
}

// recoverer turns a panicking handler into a 500
func recoverer(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					log.WithFields(logrus.Fields{
						"panic":      v,
						"path":       r.URL.Path,
						"request_id": requestID(r.Context()),
					}).Error("handler panicked")
					writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken reads the Authorization header, falling back to the
// token query parameter for websocket clients that cannot set headers
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("token")
	}
	return ""
}

func (s *Server) currentUser(r *http.Request) (*data.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errUnauthenticated
	}
	username, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnauthenticated, errUnauthenticated.Message, err)
	}
	u, err := s.store.GetUserByUsername(r.Context(), username)
	if errors.Is(err, data.ErrNotFound) {
		return nil, errUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// authenticated resolves the bearer token to a user before calling next
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, *data.User)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.currentUser(r)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		next(w, r, u)
	})
}

// requireRole is authenticated plus a role check
func (s *Server) requireRole(role string, next func(http.ResponseWriter, *http.Request, *data.User)) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, u *data.User) {
		if u.RoleName != role {
			writeError(w, r, s.log, apperr.New(apperr.CodePermissionDenied, "Access denied: insufficient permissions"))
			return
		}
		next(w, r, u)
	})
}

// requestID returns the id assigned by the request logger
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
