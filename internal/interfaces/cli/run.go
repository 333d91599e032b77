package cli

import (
	stderrors "errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/TerraSight-Intelligence/internal/application/monitor"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

// NewRunCmd creates the "run" command: one monitoring pass, or a daemon loop
// when --interval is set.
func NewRunCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a monitoring pass over the configured regions",
		Long:  "Executes one full monitoring pass: change detection, collaborator\nenrichment, scoring, alert derivation, and artifact persistence.\nWith --interval the pass repeats until interrupted; cycles that find\nanother pass holding the run lock are skipped, not queued.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer rt.close()

			if interval <= 0 {
				artifact, err := rt.svc.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				return PrintResult(cmd, newArtifactReport(artifact))
			}

			return runDaemon(cmd, rt, cliCtx.Logger, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "rerun the pass on this interval (0 runs once and exits)")

	return cmd
}

// runDaemon repeats the pass until SIGINT/SIGTERM. A cycle that loses the
// lock race logs and waits for the next tick.
func runDaemon(cmd *cobra.Command, rt *cliRuntime, log logging.Logger, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log = log.Named("daemon")
	log.Info("Starting monitoring daemon", logging.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		artifact, err := rt.svc.RunOnce(ctx)
		switch {
		case stderrors.Is(err, monitor.ErrRunInProgress):
			log.Warn("Skipping cycle, another pass holds the run lock")
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			log.Error("Monitoring pass failed", logging.Err(err))
		default:
			log.Info("Monitoring pass finished",
				logging.String("run_id", artifact.ID),
				logging.String("status", string(artifact.Status)),
				logging.Int("regions_analyzed", artifact.AnalyzedCount()),
				logging.Int("alerts", len(artifact.Alerts)))
		}

		select {
		case <-ctx.Done():
			log.Info("Monitoring daemon stopped")
			return nil
		case <-ticker.C:
		}
	}
}
