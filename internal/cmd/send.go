package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/correlation"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/sender"
)

var sendCorrelationID string

var sendCmd = &cobra.Command{
	Use:   "send <agent> <message...>",
	Short: "Send one message to an agent",
	Long: `Send one message to a running agent through the resilient sender and print
its reply. The agent is resolved from the agents directory and the
AGENTFLEET_AGENT_REGISTRY overlay.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()
		fl, err := loadFleet(cfg)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to load agent definitions", err)
			return nil
		}

		cid := strings.TrimSpace(sendCorrelationID)
		if cid == "" {
			cid = uuid.New().String()
		}
		ctx := correlation.WithID(cmd.Context(), cid)

		reply := newSender(cfg, fl.registry).Send(ctx, args[0], strings.Join(args[1:], " "))
		observability.CLILogger.Debug("Send finished",
			zap.String("agent", args[0]),
			zap.String("outcome", string(reply.Outcome)),
			zap.String("correlation_id", cid))

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		return exitForReply(reply)
	},
}

// exitForReply maps undelivered replies to exit codes.
func exitForReply(reply sender.Reply) error {
	switch reply.Outcome {
	case sender.OutcomeDelivered:
		return nil
	case sender.OutcomeNotFound:
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Agent not found", nil)
	case sender.OutcomeCanceled:
		ExitWithCodeStderr(foundry.ExitFailure, "Send canceled", nil)
	default:
		ExitWithCodeStderr(foundry.ExitExternalServiceUnavailable, "Agent unavailable", nil)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendCorrelationID, "correlation-id", "", "correlation ID to forward (default: generated)")
}
