package middleware

import (
	"fmt"
	"net/http"

	apperrors "github.com/agentfleet/agentfleet/internal/errors"
)

// DefaultMaxRequestBytes is 1 MiB.
const DefaultMaxRequestBytes int64 = 1 << 20

// SizeLimit rejects requests whose declared Content-Length exceeds maxBytes
// with 413. Bodies without a length are capped while being read.
func SizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				RejectTooLarge(w, r, maxBytes)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RejectTooLarge writes the 413 admission response.
func RejectTooLarge(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	envelope := apperrors.NewPayloadTooLargeError(fmt.Sprintf("Request body exceeds %d bytes", maxBytes))
	apperrors.RespondAdmission(w, r, envelope)
}
