package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
)

// NewRunsCmd creates the "runs" command group for inspecting persisted run
// artifacts.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted monitoring runs",
	}

	cmd.AddCommand(newRunsListCmd(), newRunsGetCmd(), newRunsLatestCmd())

	return cmd
}

func newRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
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

			artifacts, err := rt.svc.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return PrintResult(cmd, runList(artifacts))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func newRunsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run with all per-region outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer rt.close()

			artifact, err := rt.svc.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, newArtifactReport(artifact))
		},
	}
}

func newRunsLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <region-id>",
		Short: "Show a region's most recent outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer rt.close()

			outcome, err := rt.svc.LatestOutcome(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outcome == nil {
				return fmt.Errorf("region %s has no recorded outcome", args[0])
			}
			return PrintResult(cmd, outcomeList{*outcome})
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Presentation types
// ─────────────────────────────────────────────────────────────────────────────

// runList renders artifact headers as a table.
type runList []run.Artifact

func (l runList) TableHeaders() []string {
	return []string{"RUN ID", "STATUS", "STARTED", "FINISHED", "REGIONS", "ALERTS"}
}

func (l runList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, a := range l {
		rows = append(rows, []string{
			a.ID,
			string(a.Status),
			a.StartedAt.UTC().Format(time.RFC3339),
			a.FinishedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(len(a.Outcomes)),
			strconv.Itoa(len(a.Alerts)),
		})
	}
	return rows
}

// artifactReport renders one artifact's per-region outcomes. JSON output
// marshals the embedded artifact unchanged.
type artifactReport struct {
	*run.Artifact
}

func newArtifactReport(a *run.Artifact) artifactReport {
	return artifactReport{Artifact: a}
}

func (r artifactReport) TableHeaders() []string {
	return outcomeList(nil).TableHeaders()
}

func (r artifactReport) TableRows() [][]string {
	return outcomeList(r.Outcomes).TableRows()
}

// outcomeList renders region outcomes as a table.
type outcomeList []run.RegionOutcome

func (l outcomeList) TableHeaders() []string {
	return []string{"REGION", "STATUS", "CHANGES", "AREA M2", "SCORE", "RECOMMENDATION"}
}

func (l outcomeList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, o := range l {
		changes, area, score, rec := "-", "-", "-", "-"
		if o.Analysis != nil {
			changes = strconv.Itoa(o.Analysis.ChangeCount)
			area = strconv.FormatFloat(o.Analysis.TotalAreaM2, 'f', 0, 64)
		}
		if o.Score != nil {
			score = strconv.FormatFloat(o.Score.FinalScore, 'f', 1, 64)
			rec = string(o.Score.Recommendation)
		}
		rows = append(rows, []string{o.Region.ID, string(o.Status), changes, area, score, rec})
	}
	return rows
}
