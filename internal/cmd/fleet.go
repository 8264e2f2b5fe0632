package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/registry"
	"github.com/agentfleet/agentfleet/internal/resilience"
	"github.com/agentfleet/agentfleet/internal/sender"
	"github.com/agentfleet/agentfleet/internal/store"
	"github.com/agentfleet/agentfleet/internal/tasks"
)

// fleet is the set of agents known to this process.
type fleet struct {
	defs     []*agentdef.Definition
	registry *registry.Registry
}

// loadFleet reads the agents directory and overlays the JSON registry from
// config. A missing directory is tolerated when the JSON registry names peers.
func loadFleet(cfg *config.Config) (*fleet, error) {
	defs, err := agentdef.LoadAll(cfg.Agents.Dir)
	if err != nil && strings.TrimSpace(cfg.Agents.Registry) == "" {
		return nil, err
	}

	reg := registry.FromDefinitions(defs, cfg.Sender.PeerHost)
	overlay, err := registry.FromJSON(cfg.Agents.Registry)
	if err != nil {
		return nil, err
	}
	reg.Merge(overlay)

	return &fleet{defs: defs, registry: reg}, nil
}

// selectAgents returns the definitions to serve: all of them, or the one named.
func (f *fleet) selectAgents(all bool, name string) ([]*agentdef.Definition, error) {
	if all {
		if len(f.defs) == 0 {
			return nil, fmt.Errorf("no agent definitions found")
		}
		return f.defs, nil
	}
	def, ok := agentdef.Find(f.defs, name)
	if !ok {
		return nil, fmt.Errorf("agent %q not found; available: %s", name, strings.Join(f.names(), ", "))
	}
	return []*agentdef.Definition{def}, nil
}

func (f *fleet) names() []string {
	names := make([]string, 0, len(f.defs))
	for _, def := range f.defs {
		names = append(names, def.Name())
	}
	return names
}

// newSender wires the resilient sender from config.
func newSender(cfg *config.Config, reg *registry.Registry) *sender.Sender {
	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		OnStateChange:    sender.ObserveTransition,
	})
	return sender.New(sender.Options{
		Registry: reg,
		Breakers: breakers,
		Retry:    resilience.NewRetrier(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay),
		Client:   a2a.NewClient(cfg.Security.APIKey),
		Timeout:  cfg.Sender.Timeout,
	})
}

// taskStores hands out one tasks.Store per agent.
type taskStores struct {
	db *store.Store
}

// openTaskStores opens the configured backend. The memory driver needs no
// shared handle.
func openTaskStores(ctx context.Context, cfg *config.Config) (*taskStores, error) {
	if cfg.Store.Driver != config.StoreLibsql {
		return &taskStores{}, nil
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger := observability.Logger(); logger != nil {
		logger.Info("Task store opened", zap.String("driver", db.Driver()))
	}
	return &taskStores{db: db}, nil
}

func (s *taskStores) forAgent(agent string) tasks.Store {
	if s.db == nil {
		return tasks.NewMemoryStore()
	}
	return s.db.Tasks(agent)
}

func (s *taskStores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
