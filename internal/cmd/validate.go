package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/observability"
)

// validationResult is the outcome for one definition file.
type validationResult struct {
	Path string
	Name string
	Err  error
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every agent definition",
	Long:  "Load and validate every agent definition in the agents directory. Exits non-zero when any file is invalid.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()
		results, err := validateDir(cfg.Agents.Dir)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to read agents directory", err)
			return nil
		}

		lines, failed := summarizeValidation(cfg.Agents.Dir, results)
		_, _ = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))

		if failed > 0 {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, fmt.Sprintf("%d agent definition(s) invalid", failed), nil)
		}
		return nil
	},
}

// validateDir loads and validates every definition file in dir, including
// duplicate name and port checks across files.
func validateDir(dir string) ([]validationResult, error) {
	files, err := agentdef.Files(dir)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	ports := make(map[int]string)
	results := make([]validationResult, 0, len(files))
	for _, file := range files {
		result := validationResult{Path: file}
		def, err := agentdef.Load(file)
		if err == nil {
			err = def.Validate()
		}
		if err == nil {
			result.Name = def.Name()
			if other, ok := names[def.Name()]; ok {
				err = fmt.Errorf("duplicate agent name %q (also in %s)", def.Name(), other)
			} else if other, ok := ports[def.A2A.Port]; ok {
				err = fmt.Errorf("port %d already used by %s", def.A2A.Port, other)
			} else {
				names[def.Name()] = file
				ports[def.A2A.Port] = def.Name()
			}
		}
		result.Err = err
		results = append(results, result)
	}
	return results, nil
}

func summarizeValidation(dir string, results []validationResult) ([]string, int) {
	lines := []string{"Agent Definitions", dir, ""}
	if len(results) == 0 {
		return append(lines, "(no *.yaml files found)"), 0
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			lines = append(lines, fmt.Sprintf("✗ %s: %v", r.Path, r.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("✓ %s (%s)", r.Name, r.Path))
	}
	lines = append(lines, "", fmt.Sprintf("%d valid, %d invalid", len(results)-failed, failed))
	return lines, failed
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
