package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/agentfleet/agentfleet/internal/agentdef"
	errwrap "github.com/agentfleet/agentfleet/internal/errors"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/registry"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that configuration, agent definitions and the peer registry load before starting servers.",
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			// Can't log if logger is nil, so use stderr
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}

		if versionInfo.Version == "" {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}

		cfg := currentConfig()
		lines := []string{"Health Check", ""}
		lines = append(lines, "✓ version "+versionInfo.Version)
		lines = append(lines, "✓ configuration loaded")

		defs, err := agentdef.LoadAll(cfg.Agents.Dir)
		if err != nil {
			lines = append(lines, fmt.Sprintf("✗ agents directory: %v", err))
		} else {
			lines = append(lines, fmt.Sprintf("✓ %d agent definition(s) in %s", len(defs), cfg.Agents.Dir))
		}

		if _, err := registry.FromJSON(cfg.Agents.Registry); err != nil {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(append(lines, fmt.Sprintf("✗ agent registry: %v", err)), "\n"), 0))
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Agent registry is not valid JSON", err)
			return
		}
		lines = append(lines, "✓ agent registry")

		if cfg.Security.APIKey == "" {
			lines = append(lines, "! no API key configured (development mode)")
		}

		_, _ = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
