package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/messaging/kafka"
)

// NewAlertsCmd creates the "alerts" command group.
func NewAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Work with threshold-breach alerts",
	}

	cmd.AddCommand(newAlertsTailCmd())

	return cmd
}

func newAlertsTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Stream alerts from the alert topic until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			consumer, err := kafka.NewAlertConsumer(cliCtx.Config.Kafka, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = consumer.Consume(ctx, func(_ context.Context, envelope *kafka.EventEnvelope, alert kafka.AlertPayload) error {
				fmt.Fprintln(cmd.OutOrStdout(), formatAlertLine(envelope.Timestamp, alert))
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func formatAlertLine(ts time.Time, alert kafka.AlertPayload) string {
	return fmt.Sprintf("%s  %-8s  %-16s  %s (value %.0f, limit %.0f)",
		ts.UTC().Format(time.RFC3339), alert.Level, alert.RegionID, alert.Message, alert.Value, alert.Limit)
}
