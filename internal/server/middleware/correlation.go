package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agentfleet/agentfleet/internal/correlation"
)

// Correlation binds the inbound or generated correlation ID to the request
// context and echoes it on the response. The ID is mirrored under chi's
// request ID key so chi.middleware.GetReqID sees the same value.
func Correlation(next http.Handler) http.Handler {
	return correlation.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := correlation.FromContext(r.Context())
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// GetCorrelationID returns the correlation ID bound to ctx.
func GetCorrelationID(ctx context.Context) string {
	if id := correlation.FromContext(ctx); id != "" {
		return id
	}
	return chimw.GetReqID(ctx)
}
