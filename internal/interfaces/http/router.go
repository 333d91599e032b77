// Package http assembles the gin route tree and the HTTP server around the
// monitoring API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/TerraSight-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/TerraSight-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and cross-cutting dependencies of the
// route tree. Nil handlers leave their routes unregistered, which keeps
// partial wiring (tests, stripped-down deployments) working.
type RouterConfig struct {
	Mode string // "debug" | "release" | "test"

	RunHandler    *handlers.RunHandler
	HealthHandler *handlers.HealthHandler

	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	// MetricsHandler serves the Prometheus scrape endpoint.
	MetricsHandler http.Handler

	// RateLimit is optional; nil disables limiting.
	RateLimit *middleware.RateLimiter
	CORS      *middleware.CORSConfig
}

// NewRouter builds the full route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogging(log, middleware.DefaultLoggingConfig()))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	corsCfg := middleware.DefaultCORSConfig()
	if cfg.CORS != nil {
		corsCfg = *cfg.CORS
	}
	r.Use(middleware.CORS(corsCfg))
	if cfg.RateLimit != nil {
		r.Use(middleware.RateLimit(cfg.RateLimit, middleware.DefaultRateLimitConfig()))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	registerRunRoutes(api, cfg.RunHandler)

	return r
}

func registerRunRoutes(api *gin.RouterGroup, h *handlers.RunHandler) {
	if h == nil {
		return
	}
	api.POST("/runs", h.TriggerRun)
	api.GET("/runs", h.ListRuns)
	api.GET("/runs/:id", h.GetRun)

	api.POST("/regions/:id/analyze", h.AnalyzeRegion)
	api.POST("/regions/:id/score", h.ScoreRegion)
	api.GET("/regions/:id/latest", h.LatestOutcome)
}
