package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/config"
	errwrap "github.com/agentfleet/agentfleet/internal/errors"
	"github.com/agentfleet/agentfleet/internal/metrics"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/ratelimit"
	"github.com/agentfleet/agentfleet/internal/server"
	"github.com/agentfleet/agentfleet/internal/server/handlers"
	"github.com/agentfleet/agentfleet/internal/tasks"
)

var serveAll bool

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve [agent]",
	Short: "Start agent HTTP servers",
	Long: `Start one agent, or every defined agent with --all, each on the port from
its definition and behind the full request pipeline.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (admission and resilience settings apply on restart)

The servers drain in-flight requests and flush logs on shutdown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !serveAll && len(args) == 0 {
			return errors.New("specify an agent name or --all")
		}
		cfg := currentConfig()

		agentLabel := ""
		if !serveAll {
			agentLabel = args[0]
		}
		observability.InitServerLogger(config.AppName, cfg.Logging.Level, agentLabel)

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		fl, err := loadFleet(cfg)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "failed to load agent definitions")
		}
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		selected, err := fl.selectAgents(serveAll, name)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "failed to select agents")
		}

		stores, err := openTaskStores(cmd.Context(), cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "failed to open task store")
		}

		snd := newSender(cfg, fl.registry)
		metrics.SetServerStartTime(time.Now().Unix())
		metrics.SetAgentsRegistered(fl.registry.Len())

		observability.ServerLogger.Info("Initializing servers",
			zap.String("version", versionInfo.Version),
			zap.Strings("agents", fl.names()),
			zap.Int("serving", len(selected)),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.String("store", cfg.Store.Driver))

		servers := make([]*server.Server, 0, len(selected))
		for _, def := range selected {
			executor, err := tasks.NewExecutor(def, snd)
			if err != nil {
				_ = stores.Close()
				return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid executor for "+def.Name())
			}

			health := handlers.NewHealthManager()
			if cfg.Metrics.Enabled {
				health.RegisterChecker("telemetry", telemetryHealthChecker{})
			}
			if stores.db != nil {
				health.RegisterChecker("store", stores.db.Tasks(def.Name()))
			}

			servers = append(servers, server.New(server.Options{
				Config:     cfg,
				Definition: def,
				Service:    tasks.NewService(def.Name(), executor, stores.forAgent(def.Name())),
				Breakers:   snd.Breakers(),
				Registry:   fl.registry,
				// each server keeps its own buckets
				Limiter: ratelimit.NewLimiter(cfg.RateLimit.MaxTokens, cfg.RateLimit.RefillRate),
				Health:  health,
			}))
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Close the task store after servers stop
		signals.OnShutdown(func(ctx context.Context) error {
			if err := stores.Close(); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "task store close failed")
			}
			return nil
		})

		// Handler 3: Shutdown HTTP servers (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP servers...")
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()

			var errs []error
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs = append(errs, err)
				}
			}
			if err := errors.Join(errs...); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP servers stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			reloaded, err := config.Load(viper.GetViper())
			if err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded; restart to apply pipeline settings",
				zap.String("file", viper.ConfigFileUsed()),
				zap.String("log_level", reloaded.Logging.Level))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		errChan := make(chan error, len(servers)+1)
		for _, srv := range servers {
			go func(srv *server.Server) {
				if err := srv.Start(); err != nil {
					errChan <- err
				}
			}(srv)
		}

		// Start signal listener in background
		go func() {
			err := signals.Listen(cmd.Context())
			if err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
			}
			errChan <- err
		}()

		// Wait for a server failure or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveAll, "all", false, "serve every defined agent")
	serveCmd.Flags().String("host", "", "bind host (overrides server.host)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}
