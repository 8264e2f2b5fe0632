package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/correlation"
	"github.com/agentfleet/agentfleet/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush lets streaming handlers push events through the wrapper.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getEndpointPattern extracts chi route pattern to avoid high-cardinality paths
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if routePattern := rctx.RoutePattern(); routePattern != "" {
			return routePattern
		}
	}

	// Requests rejected before routing have no pattern yet
	switch path := r.URL.Path; path {
	case HealthPath, ReadyPath, AgentCardPath, "/version", "/metrics", "/status", "/":
		return path
	default:
		return "/unknown"
	}
}

// RequestMetrics middleware captures HTTP request metrics following Prometheus
// standards and logs every completed request with its correlation ID.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Get request size from Content-Length header
		requestSize := int64(0)
		if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
			if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
				requestSize = size
			}
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := getEndpointPattern(r)

		if observability.TelemetrySystem != nil {
			emitRequestMetrics(r.Method, endpoint, wrapped, duration, requestSize)
		}

		// The correlation stage runs inside this one; read the echoed header.
		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", duration),
				zap.Int64("request_size", requestSize),
				zap.Int64("response_size", wrapped.bytesWritten),
				zap.String("correlation_id", wrapped.Header().Get(correlation.Header)),
			)
		}
	})
}

func emitRequestMetrics(method, endpoint string, wrapped *responseWriter, duration time.Duration, requestSize int64) {
	// Common labels for all metrics (avoid high cardinality)
	commonLabels := map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(wrapped.statusCode),
	}

	_ = observability.TelemetrySystem.Counter("http_requests_total", 1, commonLabels)

	// Duration histogram in milliseconds (gofulmen standard)
	_ = observability.TelemetrySystem.Histogram("http_request_duration_ms", duration, commonLabels)

	sizeLabels := map[string]string{
		"method":   method,
		"endpoint": endpoint,
	}
	_ = observability.TelemetrySystem.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
	_ = observability.TelemetrySystem.Gauge("http_response_size_bytes", float64(wrapped.bytesWritten), sizeLabels)

	if wrapped.statusCode >= 400 {
		errorType := "client_error" // 4xx
		if wrapped.statusCode >= 500 {
			errorType = "server_error" // 5xx
		}

		_ = observability.TelemetrySystem.Counter(
			"http_errors_total",
			1,
			map[string]string{
				"method":     method,
				"endpoint":   endpoint,
				"status":     strconv.Itoa(wrapped.statusCode),
				"error_type": errorType,
			},
		)
	}
}
