package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/zapgate/zapgate/internal/auth"
	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/ratelimit"
	"github.com/zapgate/zapgate/internal/usage"
)

// APIKeyAuth returns the gateway authentication middleware. Per request it
// walks a fixed decision ladder with terminal states accept/reject:
//
//  1. bearer token present            → else 401 missing token
//  2. issuance prefix valid           → else 401 invalid format
//  3. credential store resolves it    → else 401 invalid or disabled token
//  4. api_enabled (redundant safety)  → else 401
//  5. status connected                → else 503 not connected
//  6. rate window has budget          → else 429
//
// On accept the connection is attached to the request context and a usage
// increment is scheduled after the response is sent. Every outcome,
// rejections included, is visible to the surrounding audit middleware.
func APIKeyAuth(resolver *auth.Resolver, limiter *ratelimit.Limiter, tracker *usage.Tracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeReject(w, http.StatusUnauthorized, model.ErrKindAuth, "missing token")
				return
			}

			conn, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrInvalidKeyFormat):
					writeReject(w, http.StatusUnauthorized, model.ErrKindAuth, "invalid token format")
				case errors.Is(err, auth.ErrInvalidCredentials):
					writeReject(w, http.StatusUnauthorized, model.ErrKindAuth, "invalid or disabled token")
				default:
					writeReject(w, http.StatusInternalServerError, model.ErrKindInternal, "internal error")
				}
				return
			}

			if !conn.APIEnabled {
				writeReject(w, http.StatusUnauthorized, model.ErrKindAuth, "invalid or disabled token")
				return
			}
			if conn.Status != model.StatusConnected {
				writeReject(w, http.StatusServiceUnavailable, model.ErrKindNotReady, "connection is not connected")
				return
			}
			if err := limiter.Allow(conn.ID, conn.APIRateLimit); err != nil {
				writeReject(w, http.StatusTooManyRequests, model.ErrKindRateLimit, "rate limit exceeded")
				return
			}

			if info := GetRequestInfo(r.Context()); info != nil {
				info.Connection = conn
			}

			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			// Fire-and-forget metering once the response has been
			// written. Failed requests (validation, upstream errors)
			// do not count against usage.
			if ww.status < 400 {
				tracker.Record(conn.ID)
			}
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// writeReject emits the standard error envelope from middleware, where the
// handler package's helpers are out of reach.
func writeReject(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.NewError(kind, message))
}
