package prometheus

// AppMetrics holds every metric the platform emits.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Monitoring runs
	RunsTotal            CounterVec
	RunDuration          HistogramVec
	RunRegionsTotal      CounterVec
	RunAlertsTotal       CounterVec
	RunLockContention    CounterVec
	LastRunFinishedEpoch GaugeVec

	// Change detection
	ChangesDetectedTotal HistogramVec
	ChangeAreaM2         HistogramVec
	StepTimeoutsTotal    CounterVec
	LookbackSteps        HistogramVec
	DetectDuration       HistogramVec

	// Scoring
	FinalScore           HistogramVec
	RecommendationsTotal CounterVec
	ScoreConfidence      HistogramVec

	// Collaborators
	CollaboratorRequestsTotal CounterVec
	CollaboratorLatency       HistogramVec

	// Infrastructure
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec
	DBQueryDuration  HistogramVec
	PublishesTotal   CounterVec
}

var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultDetectDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultScoreBuckets          = []float64{0, 10, 20, 25, 30, 35, 40, 45, 50, 60, 75, 100}
	DefaultChangeCountBuckets    = []float64{0, 10, 100, 500, 1000, 5000, 10000, 20000, 50000, 100000}
	DefaultAreaBuckets           = []float64{200, 1000, 10000, 100000, 1e6, 1e7, 1e8}
	DefaultConfidenceBuckets     = []float64{0.2, 0.4, 0.5, 0.6, 0.7, 0.85, 0.95}
	DefaultLookbackBuckets       = []float64{0, 1, 2, 3, 5, 10, 20}
)

// NewAppMetrics registers the full metric set on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// Runs
	m.RunsTotal = collector.RegisterCounter("runs_total", "Monitoring runs by final status", "status")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Wall-clock duration of a monitoring run", DefaultDetectDurationBuckets)
	m.RunRegionsTotal = collector.RegisterCounter("run_regions_total", "Regions processed by outcome status", "status")
	m.RunAlertsTotal = collector.RegisterCounter("run_alerts_total", "Alerts raised by level", "level")
	m.RunLockContention = collector.RegisterCounter("run_lock_contention_total", "Runs skipped because another pass held the lock")
	m.LastRunFinishedEpoch = collector.RegisterGauge("last_run_finished_timestamp_seconds", "Unix time the last run finished", "status")

	// Detection
	m.ChangesDetectedTotal = collector.RegisterHistogram("changes_detected", "Change records per analyzed region", DefaultChangeCountBuckets, "change_type")
	m.ChangeAreaM2 = collector.RegisterHistogram("change_area_m2", "Affected area per analyzed region", DefaultAreaBuckets, "change_type")
	m.StepTimeoutsTotal = collector.RegisterCounter("step_timeouts_total", "Pipeline steps that hit their deadline", "step")
	m.LookbackSteps = collector.RegisterHistogram("lookback_steps", "Date-search steps needed to find a usable window", DefaultLookbackBuckets)
	m.DetectDuration = collector.RegisterHistogram("detect_duration_seconds", "Per-region detection duration", DefaultDetectDurationBuckets)

	// Scoring
	m.FinalScore = collector.RegisterHistogram("final_score", "Final investment scores", DefaultScoreBuckets, "tier")
	m.RecommendationsTotal = collector.RegisterCounter("recommendations_total", "Recommendations by outcome", "recommendation")
	m.ScoreConfidence = collector.RegisterHistogram("score_confidence", "Blended confidence values", DefaultConfidenceBuckets)

	// Collaborators
	m.CollaboratorRequestsTotal = collector.RegisterCounter("collaborator_requests_total", "Collaborator lookups", "source", "status")
	m.CollaboratorLatency = collector.RegisterHistogram("collaborator_latency_seconds", "Collaborator lookup latency", DefaultHTTPDurationBuckets, "source")

	// Infrastructure
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "query")
	m.PublishesTotal = collector.RegisterCounter("publishes_total", "Kafka publishes", "topic", "status")

	return m
}
