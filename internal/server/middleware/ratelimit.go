package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/agentfleet/agentfleet/internal/errors"
	"github.com/agentfleet/agentfleet/internal/metrics"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/ratelimit"
)

// KeyFunc derives the rate limit bucket key of a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys buckets by the remote address without its port. Behind
// chi's RealIP the remote address is already the forwarded client.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// APIKeyOrIP keys buckets by the presented API key, falling back to the
// client IP for anonymous requests.
func APIKeyOrIP(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return "key:" + key
	}
	return ClientIP(r)
}

// RateLimit admits requests through limiter, answering 429 with a
// Retry-After header once a client's bucket is empty.
func RateLimit(limiter *ratelimit.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := key(r)
			decision := limiter.Decide(clientKey)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			kind := "ip"
			if strings.HasPrefix(clientKey, "key:") {
				kind = "api_key"
			}
			metrics.RecordRateLimitRejection(kind)
			if logger := observability.Logger(); logger != nil {
				logger.Debug("Rate limit exceeded",
					zap.String("key_kind", kind),
					zap.String("path", r.URL.Path),
					zap.Duration("retry_after", decision.RetryAfter))
			}

			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			apperrors.RespondAdmission(w, r, apperrors.NewRateLimitedError("Rate limit exceeded"))
		})
	}
}
