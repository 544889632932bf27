package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/consoleauth/pkg/jwtx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
)

// AuthnMiddleware requires a valid bearer access token. Clients tell an
// expired token apart from every other rejection by the errorCode: only
// TOKEN_EXPIRED is worth a refresh.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			raw = strings.TrimSpace(raw)
			if !ok || raw == "" {
				writeBearerError(w, CodeMissingToken, "invalid_request", "a bearer access token is required")
				return
			}

			claims, err := v.Verify(raw)
			switch {
			case errors.Is(err, jwtx.ErrExpired):
				writeBearerError(w, CodeTokenExpired, "invalid_token", "the access token has expired")
				return
			case err != nil:
				log.Warn("jwt verify failed", "err", err)
				writeBearerError(w, CodeInvalidToken, "invalid_token", "the access token is invalid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

// writeBearerError sets the RFC 6750 challenge alongside the JSON body.
func writeBearerError(w http.ResponseWriter, code, oauthErr, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+oauthErr+`", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, code, desc)
}
