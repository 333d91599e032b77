package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// RunRepository persists monitoring-run artifacts.  Region outcomes keep
// their submission order via an explicit position column; analysis and
// scoring payloads are stored as JSONB so the artifact round-trips without a
// column per metric.
type RunRepository struct {
	db  *sql.DB
	log logging.Logger
}

// NewRunRepository constructs a RunRepository over an open connection.
func NewRunRepository(conn *Connection, log logging.Logger) *RunRepository {
	return &RunRepository{db: conn.DB(), log: log.Named("run_repo")}
}

var _ run.Repository = (*RunRepository)(nil)

// SaveArtifact stores the artifact, its outcomes, and its alerts in one
// transaction.
func (r *RunRepository) SaveArtifact(ctx context.Context, artifact *run.Artifact) error {
	if artifact == nil || artifact.ID == "" {
		return errors.InvalidParam("run: artifact with an ID is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback()

	const insertRun = `
		INSERT INTO monitoring_runs (id, started_at, finished_at, period_start, period_end, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at, status = EXCLUDED.status`
	if _, err := tx.ExecContext(ctx, insertRun,
		artifact.ID, artifact.StartedAt, artifact.FinishedAt,
		artifact.PeriodStart, artifact.PeriodEnd, string(artifact.Status)); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run")
	}

	const insertOutcome = `
		INSERT INTO run_region_results (run_id, region_id, position, status, outcome)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, region_id) DO UPDATE
		SET status = EXCLUDED.status, outcome = EXCLUDED.outcome`
	for _, outcome := range artifact.Outcomes {
		payload, err := json.Marshal(outcome)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization,
				fmt.Sprintf("failed to marshal outcome for region %s", outcome.Region.ID))
		}
		if _, err := tx.ExecContext(ctx, insertOutcome,
			artifact.ID, outcome.Region.ID, outcome.Position, string(outcome.Status), payload); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError,
				fmt.Sprintf("failed to insert outcome for region %s", outcome.Region.ID))
		}
	}

	const insertAlert = `
		INSERT INTO run_alerts (run_id, region_id, level, message, value, threshold)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, alert := range artifact.Alerts {
		if _, err := tx.ExecContext(ctx, insertAlert,
			artifact.ID, alert.RegionID, string(alert.Level), alert.Message, alert.Value, alert.Limit); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert alert")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit run artifact")
	}

	r.log.Info("run artifact persisted",
		logging.String("run_id", artifact.ID),
		logging.Int("regions", len(artifact.Outcomes)),
		logging.Int("alerts", len(artifact.Alerts)))
	return nil
}

// GetArtifact loads one artifact by ID, including outcomes and alerts.
func (r *RunRepository) GetArtifact(ctx context.Context, id string) (*run.Artifact, error) {
	const selectRun = `
		SELECT id, started_at, finished_at, period_start, period_end, status
		FROM monitoring_runs WHERE id = $1`

	artifact := &run.Artifact{}
	var status string
	err := r.db.QueryRowContext(ctx, selectRun, id).Scan(
		&artifact.ID, &artifact.StartedAt, &artifact.FinishedAt,
		&artifact.PeriodStart, &artifact.PeriodEnd, &status)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeRunNotFound, fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run")
	}
	artifact.Status = run.Status(status)

	const selectOutcomes = `
		SELECT outcome FROM run_region_results
		WHERE run_id = $1 ORDER BY position ASC`
	rows, err := r.db.QueryContext(ctx, selectOutcomes, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load outcomes")
	}
	defer rows.Close()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan outcome")
		}
		var outcome run.RegionOutcome
		if err := json.Unmarshal(payload, &outcome); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal outcome")
		}
		artifact.Outcomes = append(artifact.Outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "outcome iteration failed")
	}

	const selectAlerts = `
		SELECT region_id, level, message, value, threshold
		FROM run_alerts WHERE run_id = $1 ORDER BY id ASC`
	alertRows, err := r.db.QueryContext(ctx, selectAlerts, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load alerts")
	}
	defer alertRows.Close()
	for alertRows.Next() {
		var alert run.Alert
		var level string
		if err := alertRows.Scan(&alert.RegionID, &level, &alert.Message, &alert.Value, &alert.Limit); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan alert")
		}
		alert.Level = run.AlertLevel(level)
		artifact.Alerts = append(artifact.Alerts, alert)
	}
	if err := alertRows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "alert iteration failed")
	}

	return artifact, nil
}

// ListArtifacts returns run headers in reverse chronological order.
func (r *RunRepository) ListArtifacts(ctx context.Context, limit int) ([]run.Artifact, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, started_at, finished_at, period_start, period_end, status
		FROM monitoring_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	var artifacts []run.Artifact
	for rows.Next() {
		var artifact run.Artifact
		var status string
		if err := rows.Scan(&artifact.ID, &artifact.StartedAt, &artifact.FinishedAt,
			&artifact.PeriodStart, &artifact.PeriodEnd, &status); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run")
		}
		artifact.Status = run.Status(status)
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "run iteration failed")
	}
	return artifacts, nil
}

// LatestOutcome returns the most recent outcome for a region, or nil if the
// region has never appeared in a run.
func (r *RunRepository) LatestOutcome(ctx context.Context, regionID string) (*run.RegionOutcome, error) {
	const query = `
		SELECT rr.outcome
		FROM run_region_results rr
		JOIN monitoring_runs mr ON mr.id = rr.run_id
		WHERE rr.region_id = $1
		ORDER BY mr.started_at DESC
		LIMIT 1`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, regionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load latest outcome")
	}

	var outcome run.RegionOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal outcome")
	}
	return &outcome, nil
}
