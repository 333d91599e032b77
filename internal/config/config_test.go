package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// validConfig returns a fully-populated Config that passes Validate.
func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Composite.BaseURL = "https://composites.example.com"
	cfg.Monitor.Regions = []geo.Region{
		{
			ID:   "austin-east",
			Name: "Austin East",
			BBox: geo.BoundingBox{MinLon: -97.75, MinLat: 30.25, MaxLon: -97.65, MaxLat: 30.35},
			Tier: geo.TierMetro,
		},
	}
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad server mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing db user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"missing db name", func(c *Config) { c.Database.DBName = "" }, "database.db_name"},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"no kafka brokers", func(c *Config) { c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"missing composite url", func(c *Config) { c.Composite.BaseURL = "" }, "composite.base_url"},
		{"bad step timeout", func(c *Config) { c.Detection.StepTimeout = 0 }, "step_timeout"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"region without bbox", func(c *Config) { c.Monitor.Regions[0].BBox = geo.BoundingBox{} }, "monitor.regions[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAllowsEmptyRegionList(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.Regions = nil
	assert.NoError(t, cfg.Validate(), "regions can be supplied per invocation instead")
}
