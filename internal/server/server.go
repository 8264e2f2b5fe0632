package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/config"
	apperrors "github.com/agentfleet/agentfleet/internal/errors"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/ratelimit"
	"github.com/agentfleet/agentfleet/internal/registry"
	"github.com/agentfleet/agentfleet/internal/resilience"
	"github.com/agentfleet/agentfleet/internal/server/handlers"
	servermw "github.com/agentfleet/agentfleet/internal/server/middleware"
)

// Options wires one agent's HTTP server.
type Options struct {
	Config     *config.Config
	Definition *agentdef.Definition

	// Service answers JSON-RPC posts at the root path.
	Service http.Handler

	// Breakers and Registry back the status endpoint.
	Breakers *resilience.Breakers
	Registry *registry.Registry

	// Limiter defaults to one built from Config.RateLimit.
	Limiter *ratelimit.Limiter
	// Health defaults to a fresh manager.
	Health *handlers.HealthManager
}

// Server represents the HTTP server of a single agent
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    *config.Config
	def    *agentdef.Definition
	health *handlers.HealthManager
	host   string
	port   int
}

// New creates the server and composes its middleware pipeline.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	def := opts.Definition
	if def == nil {
		def = &agentdef.Definition{}
	}
	health := opts.Health
	if health == nil {
		health = handlers.NewHealthManager()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.MaxTokens, cfg.RateLimit.RefillRate)
	}

	r := chi.NewRouter()

	// Pipeline order: headers and metrics wrap everything, then cheap
	// admission checks run before auth and body parsing.
	r.Use(servermw.SecureHeaders)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)
	if cfg.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(servermw.SizeLimit(cfg.Security.MaxRequestBytes))
	r.Use(servermw.RateLimit(limiter, keyFunc(cfg.RateLimit.Key)))
	r.Use(servermw.Auth(cfg.Security.APIKey))
	r.Use(servermw.Correlation)
	r.Use(servermw.Validation(cfg.Security.MaxMessageChars))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		apperrors.RespondWithError(w, req, err)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		apperrors.RespondWithError(w, req, err)
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		def:    def,
		health: health,
		host:   cfg.Server.Host,
		port:   def.A2A.Port,
	}

	service := opts.Service
	if service == nil {
		service = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			apperrors.RespondRPCError(w, req, http.StatusServiceUnavailable, nil, a2a.CodeInternalError, "Internal error: no task service")
		})
	}
	s.registerRoutes(service, opts.Breakers, opts.Registry)

	return s
}

func keyFunc(kind string) servermw.KeyFunc {
	if kind == config.RateLimitKeyAPIKey {
		return servermw.APIKeyOrIP
	}
	return servermw.ClientIP
}

// URL is the address peers use to reach this agent.
func (s *Server) URL() string {
	host := s.host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = s.cfg.Sender.PeerHost
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.port))
}

// Start listens and serves until Shutdown. The readiness probe turns green
// once the listener is bound.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("agent", s.def.Name()),
			zap.String("addr", listener.Addr().String()),
			zap.Bool("auth_enabled", s.cfg.Security.APIKey != ""))
		if s.cfg.Security.APIKey == "" {
			logger.Warn("No API key configured; authentication disabled (development mode)",
				zap.String("agent", s.def.Name()))
		}
	}

	s.health.MarkReady()
	err := s.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.MarkNotReady()
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server", zap.String("agent", s.def.Name()))
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health exposes the probe state.
func (s *Server) Health() *handlers.HealthManager {
	return s.health
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
