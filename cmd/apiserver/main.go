// Command apiserver runs the TerraSight-Intelligence HTTP API: run
// triggering and inspection, ad-hoc region analysis and rescoring, health
// probes, and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/TerraSight-Intelligence/internal/bootstrap"
	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/TerraSight-Intelligence/internal/interfaces/http"
	"github.com/turtacn/TerraSight-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/TerraSight-Intelligence/internal/interfaces/http/middleware"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
	log = log.Named("apiserver")

	app, err := bootstrap.Build(cfg, log)
	if err != nil {
		log.Fatal("Failed to wire dependencies", logging.Err(err))
	}
	defer app.Close()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Mode:       cfg.Server.Mode,
		RunHandler: handlers.NewRunHandler(app.Service, log),
		HealthHandler: handlers.NewHealthHandler(log,
			handlers.Component{Name: "postgres", Checker: app.Postgres},
			handlers.Component{Name: "redis", Checker: app.Redis},
			handlers.Component{Name: "minio", Checker: app.MinIO},
		),
		Logger:         log,
		Metrics:        app.Metrics,
		MetricsHandler: app.Collector.Handler(),
		RateLimit:      middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	})

	server := httpserver.NewServer(cfg.Server, router, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logging.Int("port", cfg.Server.Port))
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Fatal("HTTP server failed", logging.Err(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", logging.Err(err))
	}
}

// loadConfig reads the config file when present and falls back to TERRA_*
// environment variables for containerised deployments.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
