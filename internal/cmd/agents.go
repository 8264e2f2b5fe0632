package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/output"
	"github.com/agentfleet/agentfleet/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect agent definitions",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List defined agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()
		defs, err := agentdef.LoadAll(cfg.Agents.Dir)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to load agent definitions", err)
			return nil
		}

		rows := agentRows(defs, cfg.Sender.PeerHost)
		return writeRendered(cmd, func(f output.Formatter) (string, error) {
			return f.FormatAgents(rows)
		})
	},
}

func agentRows(defs []*agentdef.Definition, host string) []output.AgentRow {
	rows := make([]output.AgentRow, 0, len(defs))
	for _, def := range defs {
		executor := def.Executor.Kind
		if def.Executor.Kind == agentdef.ExecutorRelay {
			executor += " -> " + def.Executor.Target
		}
		skills := make([]string, 0, len(def.A2A.Skills))
		for _, skill := range def.A2A.Skills {
			skills = append(skills, skill.ID)
		}
		rows = append(rows, output.AgentRow{
			Name:     def.Name(),
			Endpoint: registry.Endpoint(host, def.A2A.Port),
			Executor: executor,
			Skills:   skills,
		})
	}
	return rows
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsListCmd)
	addOutputFlags(agentsListCmd)
}
