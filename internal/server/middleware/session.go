package middleware

import (
	"net/http"

	"github.com/zapgate/zapgate/internal/auth"
	"github.com/zapgate/zapgate/internal/model"
)

// SessionAuth guards the operator surface. It validates the bearer JWT and
// attaches the principal to the request context for handlers and the audit
// trail.
func SessionAuth(sessions *auth.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeReject(w, http.StatusUnauthorized, model.ErrKindAuth, "missing token")
				return
			}
			principal, err := sessions.Validate(token)
			if err != nil {
				writeReject(w, http.StatusUnauthorized, model.ErrKindAuth, "invalid session token")
				return
			}
			if info := GetRequestInfo(r.Context()); info != nil {
				info.Principal = principal
			}
			next.ServeHTTP(w, r)
		})
	}
}
