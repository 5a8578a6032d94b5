package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// PublicRateLimit protects unauthenticated endpoints (login, billing
// webhooks) with a per-IP fixed window. Authenticated gateway traffic uses
// per-connection limits instead; see APIKeyAuth.
func PublicRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
