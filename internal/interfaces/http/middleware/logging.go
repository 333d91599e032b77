// Package middleware holds the gin middleware chain of the HTTP API:
// request logging, panic recovery, CORS, rate limiting, and metrics.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

// LoggingConfig tunes the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are high-frequency paths excluded from logging.
	SkipPaths []string

	// SlowThreshold promotes requests above this duration to Warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips health and metrics probes.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// RequestLogging logs one line per request with method, path, status, and
// duration. 5xx log as Error, 4xx and slow requests as Warn.
func RequestLogging(log logging.Logger, cfg LoggingConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	log = log.Named("http")

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", c.Writer.Size()),
			logging.String("client_ip", c.ClientIP()),
		}
		if requestID := c.Request.Header.Get("X-Request-ID"); requestID != "" {
			fields = append(fields, logging.String("request_id", requestID))
		}

		switch {
		case status >= 500:
			log.Error("request completed with server error", fields...)
		case status >= 400:
			log.Warn("request completed with client error", fields...)
		case cfg.SlowThreshold > 0 && duration >= cfg.SlowThreshold:
			log.Warn("request completed slowly", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
