package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
)

// NewScoreCmd creates the "score" command: rescore a region from its latest
// persisted analysis with fresh collaborator data.
func NewScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <region-id>",
		Short: "Rescore a region from its latest persisted analysis",
		Long:  "Fetches the region's most recent analyzed outcome and reapplies the\nscoring engine with freshly fetched infrastructure and market data.\nNo detection is rerun.",
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

			result, err := rt.svc.ScoreRegion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, scoreReport{result})
		},
	}
}

// scoreReport renders one scoring result with its factor breakdown. JSON
// output marshals the embedded result unchanged.
type scoreReport struct {
	*scoring.Result
}

func (r scoreReport) TableHeaders() []string {
	return []string{"REGION", "BASE", "INFRA x", "MARKET x", "CONF x", "FINAL", "RECOMMENDATION"}
}

func (r scoreReport) TableRows() [][]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	return [][]string{{
		r.RegionID,
		f(r.BaseScore),
		f(r.InfraMultiplier),
		f(r.MarketMultiplier),
		f(r.ConfidenceMultiplier),
		strconv.FormatFloat(r.FinalScore, 'f', 1, 64),
		string(r.Recommendation),
	}}
}
