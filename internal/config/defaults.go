package config

import (
	"time"

	"github.com/turtacn/TerraSight-Intelligence/internal/domain/detection"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "terrasight"
	DefaultDBName     = "terrasight"
	DefaultDBMaxConns = 25

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "terrasight:"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "terrasight-monitor"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "terrasight-artifacts"

	DefaultCompositeTimeout = 60 * time.Second

	DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"
	DefaultOverpassTimeout  = 30 * time.Second
	DefaultOverpassRadiusM  = 5000

	DefaultMarketTimeout = 15 * time.Second

	DefaultAlertCriticalChangeCount = 20000
	DefaultAlertMajorChangeCount    = 5000
	DefaultAlertCriticalAreaM2      = 2_000_000

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling and before Validate so optional-but-defaulted fields are
// never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = time.Hour
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Composite backend ─────────────────────────────────────────────────────
	if cfg.Composite.RequestTimeout == 0 {
		cfg.Composite.RequestTimeout = DefaultCompositeTimeout
	}

	// ── Overpass ──────────────────────────────────────────────────────────────
	if cfg.Overpass.Endpoint == "" {
		cfg.Overpass.Endpoint = DefaultOverpassEndpoint
	}
	if cfg.Overpass.RequestTimeout == 0 {
		cfg.Overpass.RequestTimeout = DefaultOverpassTimeout
	}
	if cfg.Overpass.SearchRadiusM == 0 {
		cfg.Overpass.SearchRadiusM = DefaultOverpassRadiusM
	}

	// ── Market ────────────────────────────────────────────────────────────────
	if cfg.Market.RequestTimeout == 0 {
		cfg.Market.RequestTimeout = DefaultMarketTimeout
	}

	// ── Detection ─────────────────────────────────────────────────────────────
	def := detection.DefaultConfig()
	if cfg.Detection.StepTimeout == 0 {
		cfg.Detection.StepTimeout = def.StepTimeout
	}
	if cfg.Detection.FineResolutionM == 0 {
		cfg.Detection.FineResolutionM = def.FineResolutionM
	}
	if cfg.Detection.CoarseResolutionM == 0 {
		cfg.Detection.CoarseResolutionM = def.CoarseResolutionM
	}
	if cfg.Detection.MinChangeAreaM2 == 0 {
		cfg.Detection.MinChangeAreaM2 = def.MinChangeAreaM2
	}
	if cfg.Detection.MaxCloudCoverPct == 0 {
		cfg.Detection.MaxCloudCoverPct = def.MaxCloudCoverPct
	}
	if cfg.Detection.CloudProbThreshold == 0 {
		cfg.Detection.CloudProbThreshold = def.CloudProbThreshold
	}
	if cfg.Detection.CloudBufferM == 0 {
		cfg.Detection.CloudBufferM = def.CloudBufferM
	}
	if cfg.Detection.MaxLookbackSteps == 0 {
		cfg.Detection.MaxLookbackSteps = def.MaxLookbackSteps
	}
	if cfg.Detection.Thresholds == (detection.Thresholds{}) {
		cfg.Detection.Thresholds = def.Thresholds
	}

	// ── Scoring ───────────────────────────────────────────────────────────────
	if len(cfg.Scoring.Benchmarks.PricePerM2) == 0 {
		cfg.Scoring.Benchmarks = scoring.DefaultTierBenchmarks()
	}

	// ── Monitor ───────────────────────────────────────────────────────────────
	if cfg.Monitor.Alerts.CriticalChangeCount == 0 {
		cfg.Monitor.Alerts.CriticalChangeCount = DefaultAlertCriticalChangeCount
	}
	if cfg.Monitor.Alerts.MajorChangeCount == 0 {
		cfg.Monitor.Alerts.MajorChangeCount = DefaultAlertMajorChangeCount
	}
	if cfg.Monitor.Alerts.CriticalAreaM2 == 0 {
		cfg.Monitor.Alerts.CriticalAreaM2 = DefaultAlertCriticalAreaM2
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
