// Package correlation carries a per-request correlation ID through a
// request's context, including outbound calls made while handling it.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header used to read, echo and forward correlation IDs.
const Header = "X-Correlation-ID"

// contextKey is a custom type to avoid context key collisions
type contextKey struct{}

// Extract returns the inbound correlation ID, or a fresh UUID when the header
// is absent or blank.
func Extract(h http.Header) string {
	if h != nil {
		if id := strings.TrimSpace(h.Get(Header)); id != "" {
			return id
		}
	}
	return uuid.New().String()
}

// WithID binds id to the returned context.
func WithID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation ID bound to ctx, or "" if none.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// Attach writes the correlation ID bound to ctx onto outbound headers.
// Nothing is written when ctx carries no ID.
func Attach(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	if id := FromContext(ctx); id != "" {
		h.Set(Header, id)
	}
}

// Middleware extracts or generates the correlation ID, binds it to the
// request context and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Extract(r.Header)

		w.Header().Set(Header, id)

		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
