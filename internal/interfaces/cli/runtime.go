package cli

import (
	"context"

	"github.com/turtacn/TerraSight-Intelligence/internal/application/monitor"
	"github.com/turtacn/TerraSight-Intelligence/internal/bootstrap"
	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

// monitorService is the slice of the monitoring application the CLI drives.
type monitorService interface {
	RunOnce(ctx context.Context) (*run.Artifact, error)
	AnalyzeRegion(ctx context.Context, regionID string) (*run.RegionOutcome, error)
	ScoreRegion(ctx context.Context, regionID string) (*scoring.Result, error)
	GetRun(ctx context.Context, id string) (*run.Artifact, error)
	ListRuns(ctx context.Context, limit int) ([]run.Artifact, error)
	LatestOutcome(ctx context.Context, regionID string) (*run.RegionOutcome, error)
}

var _ monitorService = (*monitor.Service)(nil)

// cliRuntime bundles the wired monitoring service with a teardown function
// that releases every connection the wiring opened.
type cliRuntime struct {
	svc   monitorService
	close func()
}

// newRuntime is a package variable so command tests can substitute a fake
// service without touching real infrastructure.
var newRuntime = buildRuntime

func buildRuntime(cfg *config.Config, log logging.Logger) (*cliRuntime, error) {
	app, err := bootstrap.Build(cfg, log)
	if err != nil {
		return nil, err
	}
	return &cliRuntime{svc: app.Service, close: app.Close}, nil
}
