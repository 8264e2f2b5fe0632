package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/config"
	apperrors "github.com/agentfleet/agentfleet/internal/errors"
	"github.com/agentfleet/agentfleet/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// AgentQueryParam narrows /metrics output to one agent's series.
const AgentQueryParam = "agent"

// MetricsHandler proxies Prometheus metrics from the internal exporter so callers
// can scrape /metrics on any agent's HTTP server. Agents started together share
// one exporter; ?agent=<name> drops series labeled for other agents while
// keeping fleet-wide series that carry no agent label.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	exporter := observability.PrometheusExporter
	if exporter == nil {
		err := apperrors.NewServiceUnavailableError("Metrics exporter not initialized")
		apperrors.RespondWithError(w, r, err)
		return
	}

	// Get metrics URL using the actual port the exporter is listening on
	metricsPort := observability.GetMetricsPort()
	if metricsPort == 0 {
		// Fallback: configured port or default
		metricsPort = 9090
		if cfg := config.GetConfig(); cfg != nil && cfg.Metrics.Port != 0 {
			metricsPort = cfg.Metrics.Port
		}
	}
	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", metricsPort)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
	if err != nil {
		wrappedErr, _ := errors.NewErrorEnvelope(apperrors.CodeInternal, "Unable to construct metrics request").
			WithContext(map[string]interface{}{
				"metrics_url":    metricsURL,
				"original_error": err.Error(),
			})
		apperrors.RespondWithError(w, r, wrappedErr)
		return
	}

	// Preserve caller hint for content negotiation
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		wrappedErr, _ := errors.NewErrorEnvelope(apperrors.CodeExternalService, "Prometheus exporter unavailable").
			WithContext(map[string]interface{}{
				"metrics_url":    metricsURL,
				"original_error": err.Error(),
			})
		apperrors.RespondWithError(w, r, wrappedErr)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to close metrics response body",
				zap.Error(err))
		}
	}()

	agent := strings.TrimSpace(r.URL.Query().Get(AgentQueryParam))

	for key, values := range resp.Header {
		// Filtering changes the body length.
		if agent != "" && strings.EqualFold(key, "Content-Length") {
			continue
		}
		// Skip hop-by-hop headers; net/http handles them.
		if strings.EqualFold(key, "Connection") || strings.EqualFold(key, "Keep-Alive") ||
			strings.EqualFold(key, "Proxy-Authenticate") || strings.EqualFold(key, "Proxy-Authorization") ||
			strings.EqualFold(key, "TE") || strings.EqualFold(key, "Trailer") ||
			strings.EqualFold(key, "Transfer-Encoding") || strings.EqualFold(key, "Upgrade") {
			continue
		}

		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	// Ensure we always advertise Prometheus content type
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)

	var copyErr error
	if agent == "" || resp.StatusCode != http.StatusOK {
		_, copyErr = io.Copy(w, resp.Body)
	} else {
		copyErr = filterAgentSeries(w, resp.Body, agent)
	}
	if copyErr != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response",
			zap.String("agent", agent),
			zap.Error(copyErr))
	}
}

// filterAgentSeries copies Prometheus text exposition from src to dst,
// dropping samples whose agent label names a different agent.
func filterAgentSeries(dst io.Writer, src io.Reader, agent string) error {
	want := `agent="` + agent + `"`
	bw := bufio.NewWriter(dst)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !keepSeries(line, want) {
			continue
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

func keepSeries(line, want string) bool {
	if strings.HasPrefix(line, "#") {
		return true
	}
	open := strings.IndexByte(line, '{')
	if open < 0 {
		return true
	}
	end := strings.IndexByte(line[open:], '}')
	if end < 0 {
		return true
	}
	labels := line[open+1 : open+end]
	for _, pair := range strings.Split(labels, ",") {
		pair = strings.TrimSpace(pair)
		if strings.HasPrefix(pair, `agent="`) {
			return pair == want
		}
	}
	return true
}
