// Package run defines the monitoring-run artifact: the per-run record that
// bundles every region's analysis and scoring outcome with the alerts derived
// from threshold breaches, plus the persistence and publication contracts the
// infrastructure layer implements.
package run

import (
	"context"
	"time"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// Status is the lifecycle state of a monitoring run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// RegionStatus describes how one region fared within a run.  A degraded or
// unanalyzed region appears in the artifact with an explicit status rather
// than being silently omitted.
type RegionStatus string

const (
	RegionAnalyzed   RegionStatus = "analyzed"
	RegionDegraded   RegionStatus = "degraded"
	RegionUnanalyzed RegionStatus = "unanalyzed"
	RegionFailed     RegionStatus = "failed"
)

// AlertLevel grades an alert.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertMajor    AlertLevel = "major"
)

// Alert is one threshold breach detected during a run.
type Alert struct {
	RegionID string     `json:"region_id"`
	Level    AlertLevel `json:"level"`
	Message  string     `json:"message"`
	Value    float64    `json:"value"`
	Limit    float64    `json:"limit"`
}

// RegionOutcome pairs one region's analysis result with its scoring result.
// Analysis and Score are nil for unanalyzed or failed regions.
type RegionOutcome struct {
	Region   geo.Region          `json:"region"`
	Position int                 `json:"position"`
	Status   RegionStatus        `json:"status"`
	Analysis *geo.AnalysisResult `json:"analysis,omitempty"`
	Score    *scoring.Result     `json:"score,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Artifact is the full structured record of one monitoring pass.  Outcomes
// appear in the same order regions were submitted.
type Artifact struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Status      Status          `json:"status"`
	Outcomes    []RegionOutcome `json:"outcomes"`
	Alerts      []Alert         `json:"alerts"`
}

// AnalyzedCount reports how many regions produced an analysis result.
func (a *Artifact) AnalyzedCount() int {
	n := 0
	for _, o := range a.Outcomes {
		if o.Analysis != nil {
			n++
		}
	}
	return n
}

// Repository persists run artifacts and their per-region outcomes.
type Repository interface {
	// SaveArtifact stores the artifact and all its outcomes atomically.
	SaveArtifact(ctx context.Context, artifact *Artifact) error

	// GetArtifact loads one artifact by ID, including outcomes and alerts.
	GetArtifact(ctx context.Context, id string) (*Artifact, error)

	// ListArtifacts returns artifact headers (no outcomes) in reverse
	// chronological order.
	ListArtifacts(ctx context.Context, limit int) ([]Artifact, error)

	// LatestOutcome returns the most recent outcome for a region, or nil if
	// the region has never been analyzed.
	LatestOutcome(ctx context.Context, regionID string) (*RegionOutcome, error)
}

// ArtifactStore archives the serialized artifact as an object (for reporting
// collaborators that consume files rather than rows).
type ArtifactStore interface {
	PutArtifact(ctx context.Context, artifact *Artifact) (location string, err error)
}

// Publisher emits run events and alerts to downstream consumers.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, artifact *Artifact) error
	PublishAlerts(ctx context.Context, runID string, alerts []Alert) error
}
