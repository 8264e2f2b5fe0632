package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthResponse is the liveness body. It is returned while the process runs.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadyResponse is the readiness body.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager tracks process uptime, the startup flag and readiness checks
type HealthManager struct {
	started time.Time
	ready   atomic.Bool
	clock   func() time.Time

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager that is live but not yet ready.
func NewHealthManager() *HealthManager {
	return &HealthManager{
		started:  time.Now(),
		clock:    time.Now,
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker registers a health checker consulted by the readiness probe
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// MarkReady flips readiness once startup has completed.
func (hm *HealthManager) MarkReady() {
	hm.ready.Store(true)
}

// MarkNotReady flips readiness off, e.g. while draining on shutdown.
func (hm *HealthManager) MarkNotReady() {
	hm.ready.Store(false)
}

// Ready reports the startup flag.
func (hm *HealthManager) Ready() bool {
	return hm.ready.Load()
}

// Uptime returns the time since the manager was created.
func (hm *HealthManager) Uptime() time.Duration {
	return hm.clock().Sub(hm.started)
}

// runHealthChecks executes all registered health checks
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	checks := make(map[string]string, len(hm.checkers))
	for name, checker := range hm.checkers {
		select {
		case <-ctx.Done():
			checks[name] = "timeout"
			continue
		default:
		}
		if err := checker.CheckHealth(ctx); err != nil {
			checks[name] = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}
	return checks
}

// HealthHandler answers the liveness probe
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	uptime := math.Round(hm.Uptime().Seconds()*100) / 100
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", UptimeSeconds: uptime})
}

// ReadinessHandler answers 200 once startup completed and every check
// passes, 503 otherwise.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !hm.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready"})
		return
	}

	checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx)
	for _, result := range checks {
		if result != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
			return
		}
	}

	if len(checks) == 0 {
		checks = nil
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
