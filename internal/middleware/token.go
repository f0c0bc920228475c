package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenMiddleware guards the admin surface with one static token. An
// empty token disables the guard entirely.
type TokenMiddleware struct {
	token string
}

// NewTokenMiddleware creates a token guard.
func NewTokenMiddleware(token string) *TokenMiddleware {
	return &TokenMiddleware{token: token}
}

// Require wraps an HTTP handler with the token check. The token is
// accepted as either "Authorization: Bearer <token>" or an
// "X-Admin-Token" header.
func (m *TokenMiddleware) Require(next http.Handler) http.Handler {
	if m.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-Admin-Token")
		if presented == "" {
			const bearerPrefix = "Bearer "
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
				presented = strings.TrimPrefix(auth, bearerPrefix)
			}
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
			http.Error(w, `{"error": "invalid or missing admin token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
