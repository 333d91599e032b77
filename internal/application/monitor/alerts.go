package monitor

import (
	"fmt"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
)

// DeriveAlerts folds analyzed outcomes through the configured thresholds.
//
// Per region, at most one change-count alert fires (critical shadows major)
// plus an independent affected-area alert. A zero threshold disables its
// rule. Outcomes without an analysis never alert.
func DeriveAlerts(outcomes []run.RegionOutcome, cfg config.AlertConfig) []run.Alert {
	var alerts []run.Alert
	for _, outcome := range outcomes {
		if outcome.Analysis == nil {
			continue
		}
		regionID := outcome.Region.ID
		count := outcome.Analysis.ChangeCount
		area := outcome.Analysis.TotalAreaM2

		switch {
		case cfg.CriticalChangeCount > 0 && count >= cfg.CriticalChangeCount:
			alerts = append(alerts, run.Alert{
				RegionID: regionID,
				Level:    run.AlertCritical,
				Message:  fmt.Sprintf("change count %d breaches critical threshold %d", count, cfg.CriticalChangeCount),
				Value:    float64(count),
				Limit:    float64(cfg.CriticalChangeCount),
			})
		case cfg.MajorChangeCount > 0 && count >= cfg.MajorChangeCount:
			alerts = append(alerts, run.Alert{
				RegionID: regionID,
				Level:    run.AlertMajor,
				Message:  fmt.Sprintf("change count %d breaches major threshold %d", count, cfg.MajorChangeCount),
				Value:    float64(count),
				Limit:    float64(cfg.MajorChangeCount),
			})
		}

		if cfg.CriticalAreaM2 > 0 && area >= cfg.CriticalAreaM2 {
			alerts = append(alerts, run.Alert{
				RegionID: regionID,
				Level:    run.AlertCritical,
				Message:  fmt.Sprintf("affected area %.0f m2 breaches critical threshold %.0f m2", area, cfg.CriticalAreaM2),
				Value:    area,
				Limit:    cfg.CriticalAreaM2,
			})
		}
	}
	return alerts
}
