package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeDetector struct {
	searchErr   map[string]error
	analyses    map[string]*geo.AnalysisResult
	detectErr   map[string]error
	detectCalls []string
	detectEnds  []time.Time
	onDetect    func(regionID string)
	maxSteps    int
}

func (d *fakeDetector) FindUsableWindows(_ context.Context, region geo.Region, targetEnd time.Time) (detection.SearchResult, error) {
	if err := d.searchErr[region.ID]; err != nil {
		return detection.SearchResult{}, err
	}
	baseline, current := geo.WindowPair(targetEnd)
	return detection.SearchResult{WindowA: baseline, WindowB: current, Found: true}, nil
}

func (d *fakeDetector) MaxLookbackSteps() int { return d.maxSteps }

func (d *fakeDetector) Detect(_ context.Context, region geo.Region, windowA, windowB geo.TimeWindow) (*geo.AnalysisResult, error) {
	d.detectCalls = append(d.detectCalls, region.ID)
	d.detectEnds = append(d.detectEnds, windowB.End)
	if d.onDetect != nil {
		d.onDetect(region.ID)
	}
	if err := d.detectErr[region.ID]; err != nil {
		return nil, err
	}
	if a, ok := d.analyses[region.ID]; ok {
		return a, nil
	}
	return &geo.AnalysisResult{
		RegionID: region.ID,
		WindowA:  windowA,
		WindowB:  windowB,
		Quality:  geo.QualityOK,
	}, nil
}

type scoreCall struct {
	regionID string
	count    int
	infra    *scoring.InfrastructureSummary
	market   *scoring.MarketSummary
}

type fakeScorer struct {
	calls []scoreCall
}

func (s *fakeScorer) Score(region geo.Region, changeCount int, affectedAreaM2 float64, infra *scoring.InfrastructureSummary, market *scoring.MarketSummary) scoring.Result {
	s.calls = append(s.calls, scoreCall{regionID: region.ID, count: changeCount, infra: infra, market: market})
	return scoring.Result{
		RegionID:       region.ID,
		ChangeCount:    changeCount,
		AffectedAreaM2: affectedAreaM2,
		FinalScore:     42,
		Confidence:     0.8,
		Recommendation: scoring.RecommendBuy,
	}
}

type fakeRepo struct {
	saved   []*run.Artifact
	saveErr error
	latest  map[string]*run.RegionOutcome
}

func (r *fakeRepo) SaveArtifact(_ context.Context, artifact *run.Artifact) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, artifact)
	return nil
}

func (r *fakeRepo) GetArtifact(_ context.Context, id string) (*run.Artifact, error) {
	for _, a := range r.saved {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, errors.New(errors.ErrCodeRunNotFound, "not found")
}

func (r *fakeRepo) ListArtifacts(_ context.Context, _ int) ([]run.Artifact, error) {
	out := make([]run.Artifact, 0, len(r.saved))
	for i := len(r.saved) - 1; i >= 0; i-- {
		out = append(out, *r.saved[i])
	}
	return out, nil
}

func (r *fakeRepo) LatestOutcome(_ context.Context, regionID string) (*run.RegionOutcome, error) {
	return r.latest[regionID], nil
}

type fakeStore struct {
	got *run.Artifact
	err error
}

func (s *fakeStore) PutArtifact(_ context.Context, artifact *run.Artifact) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.got = artifact
	return "bucket/runs/" + artifact.ID + ".json", nil
}

type fakePublisher struct {
	completed    []*run.Artifact
	alerts       map[string][]run.Alert
	completedErr error
	alertsErr    error
}

func (p *fakePublisher) PublishRunCompleted(_ context.Context, artifact *run.Artifact) error {
	if p.completedErr != nil {
		return p.completedErr
	}
	p.completed = append(p.completed, artifact)
	return nil
}

func (p *fakePublisher) PublishAlerts(_ context.Context, runID string, alerts []run.Alert) error {
	if p.alertsErr != nil {
		return p.alertsErr
	}
	if p.alerts == nil {
		p.alerts = map[string][]run.Alert{}
	}
	p.alerts[runID] = alerts
	return nil
}

type fakeLock struct {
	tryOK    bool
	tryErr   error
	unlocked bool
}

func (l *fakeLock) Lock(_ context.Context) error { return nil }
func (l *fakeLock) TryLock(_ context.Context) (bool, error) {
	return l.tryOK, l.tryErr
}
func (l *fakeLock) Unlock(_ context.Context) error {
	l.unlocked = true
	return nil
}
func (l *fakeLock) Extend(_ context.Context, _ time.Duration) (bool, error) { return true, nil }
func (l *fakeLock) TTL(_ context.Context) (time.Duration, error)            { return 0, nil }

type fakeInfraProvider struct {
	summary *scoring.InfrastructureSummary
	err     error
	calls   int
}

func (p *fakeInfraProvider) FetchInfrastructure(_ context.Context, _ geo.Region) (*scoring.InfrastructureSummary, error) {
	p.calls++
	return p.summary, p.err
}

type fakeMarketProvider struct {
	summary *scoring.MarketSummary
	err     error
	calls   int
}

func (p *fakeMarketProvider) FetchMarket(_ context.Context, _ geo.Region) (*scoring.MarketSummary, error) {
	p.calls++
	return p.summary, p.err
}

// ─────────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────────

func testMetrics(t *testing.T) *prometheus.AppMetrics {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "terrasight_test"}, logging.NewNopLogger())
	require.NoError(t, err)
	return prometheus.NewAppMetrics(collector)
}

func regionFixture(id string) geo.Region {
	return geo.Region{
		ID:   id,
		Name: id,
		BBox: geo.BoundingBox{MinLon: -97.75, MinLat: 30.25, MaxLon: -97.65, MaxLat: 30.35},
		Tier: geo.TierMetro,
	}
}

type testEnv struct {
	svc       *Service
	detector  *fakeDetector
	scorer    *fakeScorer
	repo      *fakeRepo
	store     *fakeStore
	publisher *fakePublisher
	lock      *fakeLock
	infraP    *fakeInfraProvider
	marketP   *fakeMarketProvider
}

func newTestEnv(t *testing.T, cfg config.MonitorConfig, cache redis.Cache) *testEnv {
	t.Helper()
	env := &testEnv{
		detector:  &fakeDetector{searchErr: map[string]error{}, analyses: map[string]*geo.AnalysisResult{}, detectErr: map[string]error{}},
		scorer:    &fakeScorer{},
		repo:      &fakeRepo{latest: map[string]*run.RegionOutcome{}},
		store:     &fakeStore{},
		publisher: &fakePublisher{},
		lock:      &fakeLock{tryOK: true},
		infraP: &fakeInfraProvider{summary: &scoring.InfrastructureSummary{
			Score: 80, DataConfidence: 0.8, DataSource: "osm-overpass",
		}},
		marketP: &fakeMarketProvider{summary: &scoring.MarketSummary{
			AvgPricePerM2: 500, Heat: scoring.HeatWarm, DataConfidence: 0.9, DataSource: "market-feed",
		}},
	}

	svc, err := NewService(Deps{
		Detector:  env.detector,
		Scorer:    env.scorer,
		Infra:     env.infraP,
		Market:    env.marketP,
		Repo:      env.repo,
		Store:     env.store,
		Publisher: env.publisher,
		Lock:      env.lock,
		Cache:     cache,
		Metrics:   testMetrics(t),
	}, cfg, logging.NewNopLogger())
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC) }
	svc.newRunID = func() string { return "run-fixed" }
	env.svc = svc
	return env
}

func twoRegionConfig() config.MonitorConfig {
	return config.MonitorConfig{Regions: []geo.Region{regionFixture("region-a"), regionFixture("region-b")}}
}

// ─────────────────────────────────────────────────────────────────────────────
// RunOnce
// ─────────────────────────────────────────────────────────────────────────────

func TestRunOnceHappyPath(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.detector.analyses["region-a"] = &geo.AnalysisResult{
		RegionID:    "region-a",
		ChangeCount: 1200,
		TotalAreaM2: 50000,
		ByType:      map[geo.ChangeType]int{geo.ChangeDevelopment: 1200},
		Quality:     geo.QualityOK,
	}

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, "run-fixed", artifact.ID)
	assert.Equal(t, run.StatusCompleted, artifact.Status)
	assert.Equal(t, 2*geo.ReportingPeriod, artifact.PeriodEnd.Sub(artifact.PeriodStart))
	assert.Empty(t, artifact.Alerts, "zero thresholds never alert")

	require.Len(t, artifact.Outcomes, 2)
	for i, outcome := range artifact.Outcomes {
		assert.Equal(t, i, outcome.Position)
		assert.Equal(t, run.RegionAnalyzed, outcome.Status)
		require.NotNil(t, outcome.Analysis)
		require.NotNil(t, outcome.Score)
		assert.Equal(t, 42.0, outcome.Score.FinalScore)
	}
	assert.Equal(t, 1200, artifact.Outcomes[0].Analysis.ChangeCount)

	require.Len(t, env.repo.saved, 1)
	assert.Same(t, artifact, env.repo.saved[0])
	assert.Same(t, artifact, env.store.got)
	require.Len(t, env.publisher.completed, 1)
	assert.True(t, env.lock.unlocked)

	require.Len(t, env.scorer.calls, 2)
	assert.NotNil(t, env.scorer.calls[0].infra)
	assert.NotNil(t, env.scorer.calls[0].market)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.lock.tryOK = false

	_, err := env.svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, env.repo.saved)
	assert.Empty(t, env.detector.detectCalls)
}

func TestRunOnceDataUnavailableRegionIsUnanalyzed(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.detector.detectErr["region-a"] = errors.DataUnavailable("no usable capture in either window")

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, artifact.Status)
	assert.Equal(t, run.RegionUnanalyzed, artifact.Outcomes[0].Status)
	assert.Nil(t, artifact.Outcomes[0].Analysis)
	assert.Nil(t, artifact.Outcomes[0].Score)
	assert.NotEmpty(t, artifact.Outcomes[0].Error)
	assert.Equal(t, run.RegionAnalyzed, artifact.Outcomes[1].Status)
}

func TestRunOnceEmptyCompositeRetriesOneStepBack(t *testing.T) {
	env := newTestEnv(t, config.MonitorConfig{Regions: []geo.Region{regionFixture("region-a")}}, nil)
	env.detector.maxSteps = 20
	env.detector.detectErr["region-a"] = errors.DataUnavailable("empty composite for current window")
	env.detector.onDetect = func(id string) {
		// Imagery exists one reporting period back.
		if len(env.detector.detectCalls) == 2 {
			delete(env.detector.detectErr, id)
		}
	}

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, artifact.Outcomes, 1)
	assert.Equal(t, run.RegionAnalyzed, artifact.Outcomes[0].Status)
	require.NotNil(t, artifact.Outcomes[0].Analysis)
	require.NotNil(t, artifact.Outcomes[0].Score)

	require.Len(t, env.detector.detectEnds, 2)
	assert.Equal(t, env.detector.detectEnds[0].Add(-geo.ReportingPeriod), env.detector.detectEnds[1],
		"second attempt runs one reporting period earlier")
}

func TestRunOnceEmptyCompositeExhaustsLookbackBudget(t *testing.T) {
	env := newTestEnv(t, config.MonitorConfig{Regions: []geo.Region{regionFixture("region-a")}}, nil)
	env.detector.maxSteps = 2
	env.detector.detectErr["region-a"] = errors.DataUnavailable("empty composite for current window")

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, artifact.Status)
	assert.Equal(t, run.RegionUnanalyzed, artifact.Outcomes[0].Status)
	assert.NotEmpty(t, artifact.Outcomes[0].Error)
	assert.Len(t, env.detector.detectCalls, 3, "initial attempt plus two lookback retries")
}

func TestRunOnceFailedRegionDoesNotAbortRun(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.detector.detectErr["region-a"] = errors.New(errors.ErrCodeVectorizationFailed, "vectorizer blew up")

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, artifact.Status)
	assert.Equal(t, run.RegionFailed, artifact.Outcomes[0].Status)
	assert.Contains(t, artifact.Outcomes[0].Error, "vectorizer blew up")
	assert.Equal(t, run.RegionAnalyzed, artifact.Outcomes[1].Status)
}

func TestRunOnceDegradedQualityStillScores(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.detector.analyses["region-a"] = &geo.AnalysisResult{
		RegionID:    "region-a",
		ChangeCount: 5,
		Quality:     geo.QualityTimeout,
	}

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, run.RegionDegraded, artifact.Outcomes[0].Status)
	require.NotNil(t, artifact.Outcomes[0].Score, "a degraded analysis is still scored")
	assert.Equal(t, run.StatusCompleted, artifact.Status)
}

func TestRunOnceDerivesAndPublishesAlerts(t *testing.T) {
	cfg := twoRegionConfig()
	cfg.Alerts = config.AlertConfig{CriticalChangeCount: 20000, MajorChangeCount: 5000, CriticalAreaM2: 2_000_000}
	env := newTestEnv(t, cfg, nil)
	env.detector.analyses["region-a"] = &geo.AnalysisResult{
		RegionID:    "region-a",
		ChangeCount: 25000,
		TotalAreaM2: 3_000_000,
		Quality:     geo.QualityOK,
	}

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, artifact.Alerts, 2)
	for _, alert := range artifact.Alerts {
		assert.Equal(t, "region-a", alert.RegionID)
		assert.Equal(t, run.AlertCritical, alert.Level)
	}
	assert.Equal(t, artifact.Alerts, env.publisher.alerts["run-fixed"])
}

func TestRunOnceAbortsOnCancellation(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	env.detector.onDetect = func(regionID string) {
		if regionID == "region-a" {
			cancel()
		}
	}

	artifact, err := env.svc.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, run.StatusAborted, artifact.Status)
	require.Len(t, artifact.Outcomes, 2)
	assert.Equal(t, run.RegionAnalyzed, artifact.Outcomes[0].Status)
	assert.Equal(t, run.RegionUnanalyzed, artifact.Outcomes[1].Status)
	assert.Contains(t, artifact.Outcomes[1].Error, "aborted")
	assert.Equal(t, []string{"region-a"}, env.detector.detectCalls)

	require.Len(t, env.repo.saved, 1, "the partial artifact is still persisted")
	assert.True(t, env.lock.unlocked)
}

func TestRunOncePersistFailureIsFatal(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.repo.saveErr = assert.AnError

	artifact, err := env.svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRunFailed, errors.GetCode(err))
	assert.NotNil(t, artifact, "the in-memory artifact is returned for inspection")
	assert.True(t, env.lock.unlocked)
}

func TestRunOnceArchiveAndPublishFailuresAreNonFatal(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.store.err = assert.AnError
	env.publisher.completedErr = assert.AnError
	env.publisher.alertsErr = assert.AnError

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, artifact.Status)
	require.Len(t, env.repo.saved, 1)
}

func TestRunOnceCollaboratorFailureScoresWithoutSummary(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.infraP.summary = nil
	env.infraP.err = errors.New(errors.ErrCodeDataSourceUnavailable, "overpass down")
	env.marketP.summary = nil

	artifact, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, artifact.Status)

	require.Len(t, env.scorer.calls, 2)
	for _, call := range env.scorer.calls {
		assert.Nil(t, call.infra)
		assert.Nil(t, call.market)
	}
	assert.Equal(t, run.RegionAnalyzed, artifact.Outcomes[0].Status)
}

func TestRunOnceCachesCollaboratorLookups(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := redis.NewClientWithRDB(rdb, logging.NewNopLogger())
	cache := redis.NewRedisCache(client, logging.NewNopLogger())

	cfg := config.MonitorConfig{Regions: []geo.Region{regionFixture("region-a")}}
	env := newTestEnv(t, cfg, cache)

	_, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, env.infraP.calls, "second pass reads the cached summary")
	assert.Equal(t, 1, env.marketP.calls)

	require.Len(t, env.scorer.calls, 2)
	assert.Equal(t, env.scorer.calls[0].infra.Score, env.scorer.calls[1].infra.Score)
}

func TestRunOnceCachesCollaboratorNoData(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := redis.NewClientWithRDB(rdb, logging.NewNopLogger())
	cache := redis.NewRedisCache(client, logging.NewNopLogger())

	cfg := config.MonitorConfig{Regions: []geo.Region{regionFixture("region-a")}}
	env := newTestEnv(t, cfg, cache)
	env.infraP.summary = nil
	env.marketP.summary = nil

	_, err := env.svc.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = env.svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, env.infraP.calls, "the null marker absorbs the second lookup")
	require.Len(t, env.scorer.calls, 2)
	assert.Nil(t, env.scorer.calls[1].infra)
	assert.Nil(t, env.scorer.calls[1].market)
}

// ─────────────────────────────────────────────────────────────────────────────
// On-demand operations
// ─────────────────────────────────────────────────────────────────────────────

func TestAnalyzeRegion(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.detector.analyses["region-b"] = &geo.AnalysisResult{
		RegionID:    "region-b",
		ChangeCount: 777,
		Quality:     geo.QualityOK,
	}

	outcome, err := env.svc.AnalyzeRegion(context.Background(), "region-b")
	require.NoError(t, err)
	assert.Equal(t, run.RegionAnalyzed, outcome.Status)
	assert.Equal(t, 777, outcome.Analysis.ChangeCount)
	require.NotNil(t, outcome.Score)
	assert.Empty(t, env.repo.saved, "on-demand analysis is not persisted")
}

func TestAnalyzeRegionUnknown(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)

	_, err := env.svc.AnalyzeRegion(context.Background(), "atlantis")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRegionNotFound, errors.GetCode(err))
}

func TestScoreRegionUsesLatestOutcome(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)
	env.repo.latest["region-a"] = &run.RegionOutcome{
		Region: regionFixture("region-a"),
		Status: run.RegionAnalyzed,
		Analysis: &geo.AnalysisResult{
			RegionID:    "region-a",
			ChangeCount: 800,
			TotalAreaM2: 10000,
		},
	}

	result, err := env.svc.ScoreRegion(context.Background(), "region-a")
	require.NoError(t, err)
	assert.Equal(t, 800, result.ChangeCount)
	assert.Empty(t, env.detector.detectCalls, "rescoring never re-runs detection")
}

func TestScoreRegionWithoutAnalyzedRun(t *testing.T) {
	env := newTestEnv(t, twoRegionConfig(), nil)

	_, err := env.svc.ScoreRegion(context.Background(), "region-a")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRunNotFound, errors.GetCode(err))
}

func TestNewServiceValidatesDeps(t *testing.T) {
	_, err := NewService(Deps{}, config.MonitorConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfiguration, errors.GetCode(err))
}
