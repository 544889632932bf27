package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
)

// RequirePolicy admits requests whose token claims satisfy p. It must run
// after AuthnMiddleware.
func RequirePolicy(e authz.Evaluator, p authz.Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, CodeMissingToken, "invalid_request", "a bearer access token is required")
				return
			}

			subject := authz.Subject{Role: claims.Role, Authorities: claims.Authorities}
			if !e.Allows(p, subject) {
				slogx.FromContext(r.Context()).Info("policy refused",
					"user_id", claims.Subject,
					"role", claims.Role,
					"path", r.URL.Path,
				)
				WriteError(w, http.StatusForbidden, CodeForbidden, "permission denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
