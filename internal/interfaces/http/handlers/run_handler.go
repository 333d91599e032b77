package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/TerraSight-Intelligence/internal/application/monitor"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// MonitorService is the application surface the HTTP layer drives.
type MonitorService interface {
	RunOnce(ctx context.Context) (*run.Artifact, error)
	AnalyzeRegion(ctx context.Context, regionID string) (*run.RegionOutcome, error)
	ScoreRegion(ctx context.Context, regionID string) (*scoring.Result, error)
	GetRun(ctx context.Context, id string) (*run.Artifact, error)
	ListRuns(ctx context.Context, limit int) ([]run.Artifact, error)
	LatestOutcome(ctx context.Context, regionID string) (*run.RegionOutcome, error)
}

var _ MonitorService = (*monitor.Service)(nil)

// RunHandler serves the monitoring-run endpoints.
type RunHandler struct {
	svc MonitorService
	log logging.Logger
}

// NewRunHandler builds the handler.
func NewRunHandler(svc MonitorService, log logging.Logger) *RunHandler {
	return &RunHandler{svc: svc, log: log.Named("handlers")}
}

// TriggerRun starts a full monitoring pass synchronously and returns the
// artifact. A pass already in progress maps to 409.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	artifact, err := h.svc.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, artifact)
}

// ListRuns returns the most recent run headers, newest first.
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := limitParam(c, 20, 100)
	artifacts, err := h.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, artifacts)
}

// GetRun returns one run artifact with its outcomes and alerts.
func (h *RunHandler) GetRun(c *gin.Context) {
	artifact, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, artifact)
}

// AnalyzeRegion runs detection and scoring for one region on demand.
func (h *RunHandler) AnalyzeRegion(c *gin.Context) {
	outcome, err := h.svc.AnalyzeRegion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, outcome)
}

// ScoreRegion rescores a region's latest analysis with fresh collaborator
// data.
func (h *RunHandler) ScoreRegion(c *gin.Context) {
	result, err := h.svc.ScoreRegion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// LatestOutcome returns a region's most recent persisted outcome.
func (h *RunHandler) LatestOutcome(c *gin.Context) {
	regionID := c.Param("id")
	outcome, err := h.svc.LatestOutcome(c.Request.Context(), regionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if outcome == nil {
		respondError(c, errors.New(errors.ErrCodeRunNotFound,
			"region "+regionID+" has no recorded outcome"))
		return
	}
	respond(c, http.StatusOK, outcome)
}
