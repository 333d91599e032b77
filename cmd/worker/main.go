// Command worker runs the monitoring daemon: a scheduled loop that executes
// one full monitoring pass per interval, plus a small HTTP endpoint exposing
// health probes and Prometheus metrics for the orchestrator.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/TerraSight-Intelligence/internal/application/monitor"
	"github.com/turtacn/TerraSight-Intelligence/internal/bootstrap"
	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultInterval   = 24 * time.Hour
	defaultProbePort  = 8081
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	interval := flag.Duration("interval", defaultInterval, "time between monitoring passes")
	probePort := flag.Int("probe-port", defaultProbePort, "port for health and metrics endpoints")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
	log = log.Named("worker")

	app, err := bootstrap.Build(cfg, log)
	if err != nil {
		log.Fatal("Failed to wire dependencies", logging.Err(err))
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probe := startProbeServer(*probePort, app, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = probe.Shutdown(shutdownCtx)
	}()

	log.Info("Monitoring daemon started",
		logging.Duration("interval", *interval),
		logging.Int("regions", len(cfg.Monitor.Regions)))

	runLoop(ctx, app.Service, log, *interval)

	log.Info("Monitoring daemon stopped")
}

// runLoop executes one pass immediately, then once per interval until ctx is
// cancelled. A cycle that loses the lock race is skipped, not queued.
func runLoop(ctx context.Context, svc *monitor.Service, log logging.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		artifact, err := svc.RunOnce(ctx)
		switch {
		case stderrors.Is(err, monitor.ErrRunInProgress):
			log.Warn("Skipping cycle, another pass holds the run lock")
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Error("Monitoring pass failed", logging.Err(err))
		default:
			log.Info("Monitoring pass finished",
				logging.String("run_id", artifact.ID),
				logging.String("status", string(artifact.Status)),
				logging.Int("regions_analyzed", artifact.AnalyzedCount()),
				logging.Int("alerts", len(artifact.Alerts)))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startProbeServer exposes /healthz, /readyz, and /metrics on a dedicated
// port so the daemon can run headless under an orchestrator.
func startProbeServer(port int, app *bootstrap.App, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.Postgres.HealthCheck(ctx); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := app.Redis.HealthCheck(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", app.Collector.Handler())

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("Probe server failed", logging.Err(err))
		}
	}()
	return server
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
