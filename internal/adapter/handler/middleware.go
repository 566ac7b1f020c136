package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/storefront-orders/internal/metrics"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"

	RoleAdmin = "admin"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
	userRoleKey
)

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return "unknown"
}

func UserIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func userRoleFrom(ctx context.Context) string {
	v, _ := ctx.Value(userRoleKey).(string)
	return v
}

// RequestID honors an incoming X-Request-ID or generates one, and echoes it
// on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// Identity reads the caller set by the upstream gateway. It does not reject
// anything; RequireUser and RequireAdmin do.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(HeaderUserID); id != "" {
			ctx = context.WithValue(ctx, userIDKey, id)
		}
		if role := r.Header.Get(HeaderUserRole); role != "" {
			ctx = context.WithValue(ctx, userRoleKey, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFrom(r.Context()) == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user identity"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFrom(r.Context()) == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user identity"})
			return
		}
		if userRoleFrom(r.Context()) != RoleAdmin {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type StatusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *StatusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *StatusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Logger logs every request once it completes, records its latency by route
// pattern and turns panics into a 500.
func Logger(logger zerolog.Logger, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &StatusRecorder{ResponseWriter: w}
			start := time.Now()

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("request_id", RequestIDFrom(r.Context())).
						Str("user_id", UserIDFrom(r.Context())).
						Str("method", r.Method).
						Str("url", r.URL.String()).
						Str("error", fmt.Sprintf("%v", rec)).
						Msg("request panicked")
					if recorder.status == 0 {
						writeJSON(recorder, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
					}
				}

				elapsed := time.Since(start)
				route := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				m.ObserveHTTP(route, strconv.Itoa(recorder.Status()), elapsed)

				logger.Info().
					Str("request_id", RequestIDFrom(r.Context())).
					Str("user_id", UserIDFrom(r.Context())).
					Str("method", r.Method).
					Str("url", r.URL.String()).
					Int("status", recorder.Status()).
					Dur("duration", elapsed).
					Msg("request completed")
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}
