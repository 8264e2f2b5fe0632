package handlers

import (
	"net/http"
	"time"

	"github.com/agentfleet/agentfleet/internal/registry"
	"github.com/agentfleet/agentfleet/internal/resilience"
)

// StatusResponse is the operator snapshot of this process's outbound state.
type StatusResponse struct {
	Agent     string                `json:"agent"`
	Timestamp string                `json:"timestamp"`
	Breakers  []resilience.Snapshot `json:"circuit_breakers"`
	Registry  []registry.Entry      `json:"registry"`
}

// StatusHandler reports every circuit breaker and registry entry.
func StatusHandler(agent string, breakers *resilience.Breakers, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Agent:     agent,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Breakers:  []resilience.Snapshot{},
			Registry:  []registry.Entry{},
		}
		if breakers != nil {
			resp.Breakers = append(resp.Breakers, breakers.Snapshots()...)
		}
		if reg != nil {
			resp.Registry = append(resp.Registry, reg.List()...)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
