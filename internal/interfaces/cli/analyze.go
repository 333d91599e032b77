package cli

import (
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the "analyze" command: an ad-hoc detection pass over
// a single configured region, outside any run artifact.
func NewAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <region-id>",
		Short: "Run ad-hoc change detection and scoring for one region",
		Long:  "Runs the full detection pipeline and scoring for a single configured\nregion without taking the run lock or persisting a run artifact.\nIntended for spot checks and pipeline debugging.",
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

			outcome, err := rt.svc.AnalyzeRegion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, outcomeList{*outcome})
		},
	}
}
