// Package bootstrap wires the full dependency graph from configuration.
// Every binary (API server, worker daemon, CLI) builds the same graph and
// differs only in which parts it drives.
package bootstrap

import (
	"github.com/turtacn/TerraSight-Intelligence/internal/application/monitor"
	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/detection"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/collaborators/market"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/collaborators/osm"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/composite"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/storage/minio"
)

// App bundles the wired monitoring service with the infrastructure handles
// that binaries need directly: health-check probes, the metrics registry,
// and connection teardown.
type App struct {
	Service   *monitor.Service
	Postgres  *postgres.Connection
	Redis     *redis.Client
	MinIO     *minio.Client
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	closers []func()
}

// Close releases every connection the wiring opened, in reverse wiring
// order. Safe to call on a partially-built App.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires postgres, redis, kafka, minio, the composite detection
// backend, both collaborators, the scoring engine, and the monitoring
// service from configuration. On error every already-opened connection is
// closed before returning.
func Build(cfg *config.Config, log logging.Logger) (*App, error) {
	app := &App{}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "terrasight"}, log)
	if err != nil {
		return nil, err
	}
	app.Collector = collector
	app.Metrics = prometheus.NewAppMetrics(collector)

	conn, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	app.Postgres = conn
	app.closers = append(app.closers, func() { conn.Close() })

	redisClient, err := redis.NewClient(cfg.Redis, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Redis = redisClient
	app.closers = append(app.closers, func() { redisClient.Close() })

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, func() { producer.Close() })

	minioClient, err := minio.NewClient(cfg.MinIO, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.MinIO = minioClient

	backend, err := composite.NewClient(cfg.Composite, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	marketProvider, err := market.NewProvider(cfg.Market, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	svc, err := monitor.NewService(monitor.Deps{
		Detector:  detection.NewDetector(backend, cfg.Detection, log),
		Scorer:    scoring.NewEngine(cfg.Scoring.Benchmarks, log),
		Infra:     osm.NewProvider(cfg.Overpass, log),
		Market:    marketProvider,
		Repo:      postgres.NewRunRepository(conn, log),
		Store:     minio.NewArtifactStore(minioClient, log),
		Publisher: kafka.NewRunPublisher(producer, log),
		Lock:      redis.NewMutex(redisClient, monitor.RunLockName, log),
		Cache:     redis.NewRedisCache(redisClient, log),
		Metrics:   app.Metrics,
	}, cfg.Monitor, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = svc

	return app, nil
}
