package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/output"
	"github.com/agentfleet/agentfleet/internal/registry"
)

// probeTimeout bounds each /health probe.
const probeTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the health of every defined agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()
		fl, err := loadFleet(cfg)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to load agent definitions", err)
			return nil
		}

		results := probeAgents(cmd.Context(), a2a.NewClient(cfg.Security.APIKey), fl.registry.List(), probeTimeout)
		return writeRendered(cmd, func(f output.Formatter) (string, error) {
			return f.FormatProbes(results)
		})
	},
}

// probeAgents checks every entry concurrently and returns results in entry order.
func probeAgents(ctx context.Context, client *a2a.Client, entries []registry.Entry, timeout time.Duration) []output.ProbeResult {
	results := make([]output.ProbeResult, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry registry.Entry) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = probe(probeCtx, client, entry)
		}(i, entry)
	}
	wg.Wait()

	return results
}

func probe(ctx context.Context, client *a2a.Client, entry registry.Entry) output.ProbeResult {
	result := output.ProbeResult{Name: entry.Name, Endpoint: entry.Endpoint}

	code, err := client.Health(ctx, entry.Endpoint)
	switch {
	case err == nil && code == http.StatusOK:
		result.Status = output.ProbeHealthy
		result.HTTPCode = code
	case err == nil:
		result.Status = output.ProbeUnhealthy
		result.HTTPCode = code
	case errors.Is(err, syscall.ECONNREFUSED):
		result.Status = output.ProbeNotRunning
	default:
		result.Status = output.ProbeError
		result.Detail = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			result.Detail = "timeout"
		}
	}
	return result
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addOutputFlags(statusCmd)
}
