package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

func newMockRepo(t *testing.T) (*RunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn := NewConnectionWithDB(db, logging.NewNopLogger())
	return NewRunRepository(conn, logging.NewNopLogger()), mock
}

func sampleArtifact() *run.Artifact {
	region := geo.Region{
		ID:   "austin-east",
		Name: "Austin East",
		BBox: geo.BoundingBox{MinLon: -97.75, MinLat: 30.25, MaxLon: -97.65, MaxLat: 30.35},
		Tier: geo.TierMetro,
	}
	started := time.Date(2025, 7, 9, 6, 0, 0, 0, time.UTC)
	return &run.Artifact{
		ID:          "run-0001",
		StartedAt:   started,
		FinishedAt:  started.Add(4 * time.Minute),
		PeriodStart: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC),
		Status:      run.StatusCompleted,
		Outcomes: []run.RegionOutcome{
			{
				Region:   region,
				Position: 0,
				Status:   run.RegionAnalyzed,
				Analysis: &geo.AnalysisResult{RegionID: region.ID, ChangeCount: 12000},
				Score:    &scoring.Result{RegionID: region.ID, FinalScore: 40.5, Recommendation: scoring.RecommendBuy},
			},
		},
		Alerts: []run.Alert{
			{RegionID: region.ID, Level: run.AlertMajor, Message: "change count above major threshold", Value: 12000, Limit: 5000},
		},
	}
}

func TestSaveArtifact(t *testing.T) {
	repo, mock := newMockRepo(t)
	artifact := sampleArtifact()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO monitoring_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO run_region_results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO run_alerts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveArtifact(context.Background(), artifact))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArtifactRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	artifact := sampleArtifact()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO monitoring_runs").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.SaveArtifact(context.Background(), artifact)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDatabaseError, errors.GetCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveArtifactRejectsMissingID(t *testing.T) {
	repo, _ := newMockRepo(t)
	err := repo.SaveArtifact(context.Background(), &run.Artifact{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidParam, errors.GetCode(err))
}

func TestGetArtifactNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, started_at").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetArtifact(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRunNotFound, errors.GetCode(err))
}

func TestGetArtifactRoundTrip(t *testing.T) {
	repo, mock := newMockRepo(t)
	artifact := sampleArtifact()

	mock.ExpectQuery("SELECT id, started_at").
		WithArgs(artifact.ID).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "started_at", "finished_at", "period_start", "period_end", "status"}).
			AddRow(artifact.ID, artifact.StartedAt, artifact.FinishedAt,
				artifact.PeriodStart, artifact.PeriodEnd, string(artifact.Status)))
	mock.ExpectQuery("SELECT outcome FROM run_region_results").
		WithArgs(artifact.ID).
		WillReturnRows(sqlmock.NewRows([]string{"outcome"}).
			AddRow([]byte(`{"region":{"id":"austin-east","name":"Austin East","bbox":{"min_lon":-97.75,"min_lat":30.25,"max_lon":-97.65,"max_lat":30.35},"tier":"metro"},"position":0,"status":"analyzed"}`)))
	mock.ExpectQuery("SELECT region_id, level").
		WithArgs(artifact.ID).
		WillReturnRows(sqlmock.NewRows([]string{"region_id", "level", "message", "value", "threshold"}).
			AddRow("austin-east", "major", "change count above major threshold", 12000.0, 5000.0))

	got, err := repo.GetArtifact(context.Background(), artifact.ID)
	require.NoError(t, err)

	assert.Equal(t, artifact.ID, got.ID)
	assert.Equal(t, run.StatusCompleted, got.Status)
	require.Len(t, got.Outcomes, 1)
	assert.Equal(t, "austin-east", got.Outcomes[0].Region.ID)
	assert.Equal(t, run.RegionAnalyzed, got.Outcomes[0].Status)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, run.AlertMajor, got.Alerts[0].Level)
}

func TestListArtifacts(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, started_at").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "started_at", "finished_at", "period_start", "period_end", "status"}).
			AddRow("run-2", now, now, now, now, "completed").
			AddRow("run-1", now.Add(-time.Hour), now, now, now, "completed"))

	artifacts, err := repo.ListArtifacts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "run-2", artifacts[0].ID)
}

func TestLatestOutcomeMissingRegionIsNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT rr.outcome").
		WithArgs("nowhere").
		WillReturnRows(sqlmock.NewRows([]string{"outcome"}))

	outcome, err := repo.LatestOutcome(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, outcome)
}
