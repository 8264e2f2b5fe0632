package middleware

import "net/http"

// Security headers stamped on every response.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Cache-Control":             "no-store",
	"Strict-Transport-Security": "max-age=63072000; includeSubDomains",
}

// SecureHeaders sets the security headers before the rest of the chain runs,
// so rejections and panics carry them too.
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for key, value := range securityHeaders {
			h.Set(key, value)
		}
		next.ServeHTTP(w, r)
	})
}
