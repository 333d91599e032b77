// Package monitor orchestrates one full monitoring pass: per-region change
// detection, collaborator enrichment, investment scoring, alert derivation,
// and persistence and publication of the resulting run artifact.
//
// The pass is single-worker and in-order. Regions are processed exactly in
// the configured sequence, and a distributed lock guarantees that at most one
// pass runs platform-wide at any moment.
package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/detection"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/run"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// ErrRunInProgress means another pass holds the run lock; the caller should
// skip this cycle rather than queue behind it.
var ErrRunInProgress = errors.New(errors.ErrCodeConflict, "another monitoring pass holds the run lock")

// Collaborator summaries age at very different rates: OSM infrastructure
// changes over months, market pricing over days.
const (
	infraCacheTTL  = 12 * time.Hour
	marketCacheTTL = time.Hour
)

// RunLockName is the distributed-lock name serializing monitoring passes.
// Wiring code builds the mutex; the service only drives it.
const RunLockName = "monitor-run"

// Detector is the slice of the detection pipeline the service drives.
// MaxLookbackSteps is the total lookback budget shared between the date
// search and the service's empty-composite fallback.
type Detector interface {
	FindUsableWindows(ctx context.Context, region geo.Region, targetEnd time.Time) (detection.SearchResult, error)
	Detect(ctx context.Context, region geo.Region, windowA, windowB geo.TimeWindow) (*geo.AnalysisResult, error)
	MaxLookbackSteps() int
}

// Scorer turns an analyzed region into a scored recommendation.
type Scorer interface {
	Score(region geo.Region, changeCount int, affectedAreaM2 float64, infra *scoring.InfrastructureSummary, market *scoring.MarketSummary) scoring.Result
}

var (
	_ Detector = (*detection.Detector)(nil)
	_ Scorer   = (*scoring.Engine)(nil)
)

// Deps bundles the service's collaborators. Detector, Scorer, Repo, Lock,
// and Metrics are required; the rest degrade gracefully when nil.
type Deps struct {
	Detector  Detector
	Scorer    Scorer
	Infra     scoring.InfrastructureProvider
	Market    scoring.MarketProvider
	Repo      run.Repository
	Store     run.ArtifactStore
	Publisher run.Publisher
	Lock      redis.DistributedLock
	Cache     redis.Cache
	Metrics   *prometheus.AppMetrics
}

// Service runs monitoring passes over the configured region list.
type Service struct {
	detector  Detector
	scorer    Scorer
	infra     scoring.InfrastructureProvider
	market    scoring.MarketProvider
	repo      run.Repository
	store     run.ArtifactStore
	publisher run.Publisher
	lock      redis.DistributedLock
	cache     redis.Cache
	metrics   *prometheus.AppMetrics
	cfg       config.MonitorConfig
	log       logging.Logger

	now      func() time.Time
	newRunID func() string
}

// NewService validates deps and builds the service.
func NewService(deps Deps, cfg config.MonitorConfig, log logging.Logger) (*Service, error) {
	switch {
	case deps.Detector == nil:
		return nil, errors.Configuration("monitor: detector is required")
	case deps.Scorer == nil:
		return nil, errors.Configuration("monitor: scorer is required")
	case deps.Repo == nil:
		return nil, errors.Configuration("monitor: run repository is required")
	case deps.Lock == nil:
		return nil, errors.Configuration("monitor: run lock is required")
	case deps.Metrics == nil:
		return nil, errors.Configuration("monitor: metrics are required")
	}
	if deps.Infra == nil {
		deps.Infra = scoring.NullInfrastructureProvider{}
	}
	if deps.Market == nil {
		deps.Market = scoring.NullMarketProvider{}
	}

	return &Service{
		detector:  deps.Detector,
		scorer:    deps.Scorer,
		infra:     deps.Infra,
		market:    deps.Market,
		repo:      deps.Repo,
		store:     deps.Store,
		publisher: deps.Publisher,
		lock:      deps.Lock,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		cfg:       cfg,
		log:       log.Named("monitor"),
		now:       time.Now,
		newRunID:  func() string { return uuid.New().String() },
	}, nil
}

// RunOnce executes a full monitoring pass and returns the persisted artifact.
//
// A held lock returns ErrRunInProgress without touching any region. Parent
// cancellation aborts the pass mid-sequence: regions already processed keep
// their outcomes, the rest are recorded unanalyzed, and the partial artifact
// is still persisted with status aborted.
func (s *Service) RunOnce(ctx context.Context) (*run.Artifact, error) {
	acquired, err := s.lock.TryLock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRunFailed, "run lock acquisition failed")
	}
	if !acquired {
		s.metrics.RunLockContention.WithLabelValues().Inc()
		s.log.Info("monitoring pass skipped, lock held elsewhere")
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("run lock release failed", logging.Err(err))
		}
	}()

	startedAt := s.now().UTC()
	baseline, current := geo.WindowPair(startedAt.Add(-geo.ReportingPeriod))
	artifact := &run.Artifact{
		ID:          s.newRunID(),
		StartedAt:   startedAt,
		PeriodStart: baseline.Start,
		PeriodEnd:   current.End,
		Status:      run.StatusRunning,
	}

	s.log.Info("monitoring pass started",
		logging.String("run_id", artifact.ID),
		logging.String("period", baseline.Start.Format(time.DateOnly)+".."+current.End.Format(time.DateOnly)),
		logging.Int("regions", len(s.cfg.Regions)))

	aborted := false
	for i, region := range s.cfg.Regions {
		if ctx.Err() != nil {
			aborted = true
		}
		if aborted {
			artifact.Outcomes = append(artifact.Outcomes, run.RegionOutcome{
				Region:   region,
				Position: i,
				Status:   run.RegionUnanalyzed,
				Error:    "run aborted before this region was reached",
			})
			continue
		}

		outcome := s.processRegion(ctx, region, current.End)
		outcome.Position = i
		artifact.Outcomes = append(artifact.Outcomes, outcome)
		s.metrics.RunRegionsTotal.WithLabelValues(string(outcome.Status)).Inc()
	}

	artifact.Alerts = DeriveAlerts(artifact.Outcomes, s.cfg.Alerts)
	artifact.FinishedAt = s.now().UTC()
	if aborted || ctx.Err() != nil {
		artifact.Status = run.StatusAborted
	} else {
		artifact.Status = run.StatusCompleted
	}

	for _, alert := range artifact.Alerts {
		s.metrics.RunAlertsTotal.WithLabelValues(string(alert.Level)).Inc()
	}
	s.metrics.RunsTotal.WithLabelValues(string(artifact.Status)).Inc()
	s.metrics.RunDuration.WithLabelValues().Observe(artifact.FinishedAt.Sub(startedAt).Seconds())
	s.metrics.LastRunFinishedEpoch.WithLabelValues(string(artifact.Status)).Set(float64(artifact.FinishedAt.Unix()))

	// Persist and publish even when the parent context already expired: a
	// partial artifact is still the record of what happened.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.SaveArtifact(persistCtx, artifact); err != nil {
		return artifact, errors.Wrap(err, errors.ErrCodeRunFailed, "failed to persist run artifact")
	}
	s.archive(persistCtx, artifact)
	s.publish(persistCtx, artifact)

	s.log.Info("monitoring pass finished",
		logging.String("run_id", artifact.ID),
		logging.String("status", string(artifact.Status)),
		logging.Int("analyzed", artifact.AnalyzedCount()),
		logging.Int("alerts", len(artifact.Alerts)),
		logging.Duration("duration", artifact.FinishedAt.Sub(startedAt)))
	return artifact, nil
}

// processRegion runs detection, collaborator lookups, and scoring for one
// region. Every failure mode maps to an outcome status; nothing here aborts
// the surrounding pass.
func (s *Service) processRegion(ctx context.Context, region geo.Region, targetEnd time.Time) run.RegionOutcome {
	outcome := run.RegionOutcome{Region: region, Status: run.RegionFailed}

	timer := prometheus.NewTimer(s.metrics.DetectDuration.WithLabelValues())
	defer timer.ObserveDuration()

	search, err := s.detector.FindUsableWindows(ctx, region, targetEnd)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	s.metrics.LookbackSteps.WithLabelValues().Observe(float64(search.Steps))
	if !search.Found {
		s.log.Warn("no usable window pair within lookback cap, proceeding best effort",
			logging.String("region", region.ID),
			logging.Int("steps", search.Steps))
	}

	// A detection call that still comes back data-unavailable gets the same
	// fixed-step lookback treatment as the date search, against whatever is
	// left of the shared step budget.
	windowA, windowB := search.WindowA, search.WindowB
	budget := s.detector.MaxLookbackSteps() - search.Steps

	var analysis *geo.AnalysisResult
	for {
		analysis, err = s.detector.Detect(ctx, region, windowA, windowB)
		if err == nil {
			break
		}
		if !errors.IsDataUnavailable(err) {
			s.log.Error("region analysis failed",
				logging.String("region", region.ID), logging.Err(err))
			outcome.Error = err.Error()
			return outcome
		}
		if budget <= 0 || ctx.Err() != nil {
			s.log.Warn("region skipped, no usable imagery within lookback cap",
				logging.String("region", region.ID), logging.Err(err))
			outcome.Status = run.RegionUnanalyzed
			outcome.Error = err.Error()
			return outcome
		}
		budget--
		windowA = windowA.StepBack(1)
		windowB = windowB.StepBack(1)
		s.log.Warn("empty composite, retrying one reporting period back",
			logging.String("region", region.ID),
			logging.String("window_b", windowB.String()))
	}
	s.observeAnalysis(analysis)

	infra := s.fetchInfrastructure(ctx, region)
	market := s.fetchMarket(ctx, region)

	score := s.scorer.Score(region, analysis.ChangeCount, analysis.TotalAreaM2, infra, market)
	s.observeScore(region, score)

	outcome.Analysis = analysis
	outcome.Score = &score
	if analysis.Quality == geo.QualityOK {
		outcome.Status = run.RegionAnalyzed
	} else {
		outcome.Status = run.RegionDegraded
	}
	return outcome
}

// AnalyzeRegion runs detection and scoring for a single configured region on
// demand, outside a full pass. The outcome is returned to the caller and not
// persisted.
func (s *Service) AnalyzeRegion(ctx context.Context, regionID string) (*run.RegionOutcome, error) {
	region, ok := s.regionByID(regionID)
	if !ok {
		return nil, errors.New(errors.ErrCodeRegionNotFound,
			fmt.Sprintf("region %s is not configured for monitoring", regionID))
	}
	outcome := s.processRegion(ctx, region, time.Time{})
	if outcome.Status == run.RegionFailed && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &outcome, nil
}

// ScoreRegion rescores a region's most recent analysis with fresh
// collaborator data, without re-running detection.
func (s *Service) ScoreRegion(ctx context.Context, regionID string) (*scoring.Result, error) {
	region, ok := s.regionByID(regionID)
	if !ok {
		return nil, errors.New(errors.ErrCodeRegionNotFound,
			fmt.Sprintf("region %s is not configured for monitoring", regionID))
	}
	latest, err := s.repo.LatestOutcome(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Analysis == nil {
		return nil, errors.New(errors.ErrCodeRunNotFound,
			fmt.Sprintf("region %s has no analyzed run to rescore", regionID))
	}

	infra := s.fetchInfrastructure(ctx, region)
	market := s.fetchMarket(ctx, region)
	result := s.scorer.Score(region, latest.Analysis.ChangeCount, latest.Analysis.TotalAreaM2, infra, market)
	s.observeScore(region, result)
	return &result, nil
}

// GetRun loads one run artifact by ID.
func (s *Service) GetRun(ctx context.Context, id string) (*run.Artifact, error) {
	return s.repo.GetArtifact(ctx, id)
}

// ListRuns returns the most recent artifact headers.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]run.Artifact, error) {
	return s.repo.ListArtifacts(ctx, limit)
}

// LatestOutcome returns a region's most recent outcome, or nil when the
// region has never been analyzed.
func (s *Service) LatestOutcome(ctx context.Context, regionID string) (*run.RegionOutcome, error) {
	return s.repo.LatestOutcome(ctx, regionID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Collaborator lookups
// ─────────────────────────────────────────────────────────────────────────────

// fetchInfrastructure resolves the infrastructure summary through the cache.
// Lookup failures degrade to a nil summary: scoring substitutes its neutral
// default and lowers confidence.
func (s *Service) fetchInfrastructure(ctx context.Context, region geo.Region) *scoring.InfrastructureSummary {
	timer := prometheus.NewTimer(s.metrics.CollaboratorLatency.WithLabelValues("infrastructure"))
	defer timer.ObserveDuration()

	summary, err := s.loadInfrastructure(ctx, region)
	switch {
	case err != nil:
		s.metrics.CollaboratorRequestsTotal.WithLabelValues("infrastructure", "error").Inc()
		s.log.Warn("infrastructure lookup failed, scoring without it",
			logging.String("region", region.ID), logging.Err(err))
		return nil
	case summary == nil:
		s.metrics.CollaboratorRequestsTotal.WithLabelValues("infrastructure", "no_data").Inc()
		return nil
	default:
		s.metrics.CollaboratorRequestsTotal.WithLabelValues("infrastructure", "ok").Inc()
		return summary
	}
}

func (s *Service) loadInfrastructure(ctx context.Context, region geo.Region) (*scoring.InfrastructureSummary, error) {
	if s.cache == nil {
		return s.infra.FetchInfrastructure(ctx, region)
	}
	var summary scoring.InfrastructureSummary
	err := s.cache.GetOrSet(ctx, "collab:infra:"+region.ID, &summary, infraCacheTTL,
		func(ctx context.Context) (interface{}, error) {
			got, err := s.infra.FetchInfrastructure(ctx, region)
			if err != nil {
				return nil, err
			}
			if got == nil {
				return nil, nil
			}
			return got, nil
		})
	if stderrors.Is(err, redis.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// fetchMarket mirrors fetchInfrastructure for the market collaborator.
func (s *Service) fetchMarket(ctx context.Context, region geo.Region) *scoring.MarketSummary {
	timer := prometheus.NewTimer(s.metrics.CollaboratorLatency.WithLabelValues("market"))
	defer timer.ObserveDuration()

	summary, err := s.loadMarket(ctx, region)
	switch {
	case err != nil:
		s.metrics.CollaboratorRequestsTotal.WithLabelValues("market", "error").Inc()
		s.log.Warn("market lookup failed, scoring without it",
			logging.String("region", region.ID), logging.Err(err))
		return nil
	case summary == nil:
		s.metrics.CollaboratorRequestsTotal.WithLabelValues("market", "no_data").Inc()
		return nil
	default:
		s.metrics.CollaboratorRequestsTotal.WithLabelValues("market", "ok").Inc()
		return summary
	}
}

func (s *Service) loadMarket(ctx context.Context, region geo.Region) (*scoring.MarketSummary, error) {
	if s.cache == nil {
		return s.market.FetchMarket(ctx, region)
	}
	var summary scoring.MarketSummary
	err := s.cache.GetOrSet(ctx, "collab:market:"+region.ID, &summary, marketCacheTTL,
		func(ctx context.Context) (interface{}, error) {
			got, err := s.market.FetchMarket(ctx, region)
			if err != nil {
				return nil, err
			}
			if got == nil {
				return nil, nil
			}
			return got, nil
		})
	if stderrors.Is(err, redis.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Archival, publication, helpers
// ─────────────────────────────────────────────────────────────────────────────

// archive pushes the artifact to object storage. Archival is best effort.
func (s *Service) archive(ctx context.Context, artifact *run.Artifact) {
	if s.store == nil {
		return
	}
	location, err := s.store.PutArtifact(ctx, artifact)
	if err != nil {
		s.log.Warn("artifact archive failed",
			logging.String("run_id", artifact.ID), logging.Err(err))
		return
	}
	s.log.Info("artifact archived",
		logging.String("run_id", artifact.ID),
		logging.String("location", location))
}

// publish emits the run-completed event and any alerts. Publication is best
// effort: the artifact is already persisted.
func (s *Service) publish(ctx context.Context, artifact *run.Artifact) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRunCompleted(ctx, artifact); err != nil {
		s.log.Warn("run event publish failed",
			logging.String("run_id", artifact.ID), logging.Err(err))
	}
	if len(artifact.Alerts) == 0 {
		return
	}
	if err := s.publisher.PublishAlerts(ctx, artifact.ID, artifact.Alerts); err != nil {
		s.log.Warn("alert publish failed",
			logging.String("run_id", artifact.ID),
			logging.Int("alerts", len(artifact.Alerts)),
			logging.Err(err))
	}
}

func (s *Service) observeAnalysis(analysis *geo.AnalysisResult) {
	for changeType, count := range analysis.ByType {
		s.metrics.ChangesDetectedTotal.WithLabelValues(string(changeType)).Observe(float64(count))
	}
	s.metrics.ChangeAreaM2.WithLabelValues("all").Observe(analysis.TotalAreaM2)
	if analysis.Quality == geo.QualityTimeout {
		s.metrics.StepTimeoutsTotal.WithLabelValues("detect").Inc()
	}
}

func (s *Service) observeScore(region geo.Region, result scoring.Result) {
	s.metrics.FinalScore.WithLabelValues(string(region.Tier)).Observe(result.FinalScore)
	s.metrics.RecommendationsTotal.WithLabelValues(string(result.Recommendation)).Inc()
	s.metrics.ScoreConfidence.WithLabelValues().Observe(result.Confidence)
}

func (s *Service) regionByID(id string) (geo.Region, bool) {
	for _, region := range s.cfg.Regions {
		if region.ID == id {
			return region, true
		}
	}
	return geo.Region{}, false
}
