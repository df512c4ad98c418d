package middleware

import (
	"net/http"
	"strings"

	"github.com/zackweld/crAPI/internal/security"
	"github.com/zackweld/crAPI/internal/server/httpx"
)

const bearerPrefix = "bearer "

// TokenValidator validates access tokens. Implemented by *security.TokenProvider.
type TokenValidator interface {
	ValidateAccess(token string) (security.Identity, error)
}

// Authenticate returns middleware that validates the Bearer (access) token from the Authorization
// header and stores the caller identity in the request context. Requests without a valid token get
// a 401 envelope and never reach next.
func Authenticate(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpx.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			id, err := tokens.ValidateAccess(token)
			if err != nil {
				httpx.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
