package server

import (
	"net/http"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/registry"
	"github.com/agentfleet/agentfleet/internal/resilience"
	"github.com/agentfleet/agentfleet/internal/server/handlers"
	servermw "github.com/agentfleet/agentfleet/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(service http.Handler, breakers *resilience.Breakers, reg *registry.Registry) {
	// Probes and discovery (public)
	s.router.Get(servermw.HealthPath, s.health.HealthHandler)
	s.router.Get(servermw.ReadyPath, s.health.ReadinessHandler)
	s.router.Get(servermw.AgentCardPath, handlers.AgentCardHandler(handlers.NewAgentCard(s.def, s.URL())))

	s.router.Get("/version", handlers.VersionHandler(s.def))
	s.router.Get("/metrics", MetricsHandler)
	s.router.Get("/status", handlers.StatusHandler(s.def.Name(), breakers, reg))

	// JSON-RPC
	s.router.Post("/", service.ServeHTTP)

	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	envVar := config.EnvPrefix + "_ADMIN_TOKEN"
	adminToken := os.Getenv(envVar)
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envVar + " set)")
		}
		return
	}

	// Create HTTP signal handler with bearer token auth and rate limiting
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Post(servermw.AdminSignalPath, handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", servermw.AdminSignalPath),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
