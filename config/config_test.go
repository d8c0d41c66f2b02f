package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "robots", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Alerting.DedupWindow.Std())
	assert.Equal(t, 4, cfg.Router.Partitions)
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Mongo.Database, cfg.Mongo.Database)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"log_level": "debug",
		"nats": {"url": "nats://broker:4222", "subject_prefix": "fleet", "reconnect_wait": "3s"},
		"alerting": {"dedup_window": "10m"},
		"router": {"partitions": 8, "queue_size": 2048}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "fleet", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 3*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, 10*time.Minute, cfg.Alerting.DedupWindow.Std())
	assert.Equal(t, 8, cfg.Router.Partitions)

	// Untouched sections keep defaults.
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLEETSTREAM_NATS_URL", "nats://env-broker:4222")
	t.Setenv("FLEETSTREAM_ALERT_DEDUP_WINDOW", "2m")
	t.Setenv("FLEETSTREAM_ROUTER_PARTITIONS", "16")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://env-broker:4222", cfg.NATS.URL)
	assert.Equal(t, 2*time.Minute, cfg.Alerting.DedupWindow.Std())
	assert.Equal(t, 16, cfg.Router.Partitions)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }},
		{"wildcard prefix", func(c *Config) { c.NATS.SubjectPrefix = "robots.*" }},
		{"zero partitions", func(c *Config) { c.Router.Partitions = 0 }},
		{"zero queue", func(c *Config) { c.Router.QueueSize = 0 }},
		{"zero handler timeout", func(c *Config) { c.Router.HandlerTimeout = 0 }},
		{"zero dedup window", func(c *Config) { c.Alerting.DedupWindow = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var back Duration
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, d, back)
}
