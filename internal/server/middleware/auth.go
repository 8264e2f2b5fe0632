package middleware

import (
	"crypto/subtle"
	"net/http"

	apperrors "github.com/agentfleet/agentfleet/internal/errors"
)

// APIKeyHeader carries the shared secret.
const APIKeyHeader = "X-API-Key"

// Auth requires X-API-Key to equal apiKey on every non-public path. An empty
// apiKey disables the check.
func Auth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			presented := []byte(r.Header.Get(APIKeyHeader))
			if subtle.ConstantTimeCompare(presented, expected) != 1 {
				apperrors.RespondAdmission(w, r, apperrors.NewUnauthorizedError("Invalid or missing API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
