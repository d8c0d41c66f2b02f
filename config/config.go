// Package config provides layered configuration loading for the engine:
// built-in defaults, an optional JSON file, and FLEETSTREAM_* environment
// overrides, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "FLEETSTREAM"

// Config represents the complete engine configuration.
type Config struct {
	LogLevel string         `json:"log_level"`
	HTTP     HTTPConfig     `json:"http"`
	NATS     NATSConfig     `json:"nats"`
	Mongo    MongoConfig    `json:"mongo"`
	Postgres PostgresConfig `json:"postgres"`
	Router   RouterConfig   `json:"router"`
	Alerting AlertingConfig `json:"alerting"`
	Catalog  CatalogConfig  `json:"catalog"`
}

// HTTPConfig defines the metrics/health listener.
type HTTPConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// NATSConfig defines NATS connection settings.
type NATSConfig struct {
	URL           string   `json:"url"`
	MaxReconnects int      `json:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
	SubjectPrefix string   `json:"subject_prefix"`
}

// MongoConfig defines the time-series sink connection.
type MongoConfig struct {
	URI        string   `json:"uri"`
	Database   string   `json:"database"`
	Collection string   `json:"collection"`
	Timeout    Duration `json:"timeout"`
}

// PostgresConfig defines the relational store connection.
type PostgresConfig struct {
	DSN string `json:"dsn"`
}

// RouterConfig defines the inbound processing pool.
type RouterConfig struct {
	Partitions     int      `json:"partitions"`
	QueueSize      int      `json:"queue_size"`
	HandlerTimeout Duration `json:"handler_timeout"`
}

// AlertingConfig defines alert deduplication behavior.
type AlertingConfig struct {
	DedupWindow Duration `json:"dedup_window"`
}

// CatalogConfig points at the item catalog file for scan lookups.
type CatalogConfig struct {
	Path string `json:"path,omitempty"`
}

// Duration wraps time.Duration so JSON configs can use strings like "5m".
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val))
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			ListenAddr: ":9090",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			SubjectPrefix: "robots",
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "fleetstream",
			Collection: "telemetry",
			Timeout:    Duration(5 * time.Second),
		},
		Postgres: PostgresConfig{
			DSN: "host=localhost user=fleetstream dbname=fleetstream sslmode=disable",
		},
		Router: RouterConfig{
			Partitions:     4,
			QueueSize:      1024,
			HandlerTimeout: Duration(5 * time.Second),
		},
		Alerting: AlertingConfig{
			DedupWindow: Duration(5 * time.Minute),
		},
	}
}

// Load builds the configuration from defaults, an optional file, and
// environment overrides. Path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if c.NATS.SubjectPrefix == "" {
		return errors.New("nats.subject_prefix is required")
	}
	if strings.ContainsAny(c.NATS.SubjectPrefix, " .*>") {
		return fmt.Errorf("nats.subject_prefix %q must be a single subject token", c.NATS.SubjectPrefix)
	}
	if c.Router.Partitions <= 0 {
		return errors.New("router.partitions must be positive")
	}
	if c.Router.QueueSize <= 0 {
		return errors.New("router.queue_size must be positive")
	}
	if c.Router.HandlerTimeout.Std() <= 0 {
		return errors.New("router.handler_timeout must be positive")
	}
	if c.Alerting.DedupWindow.Std() <= 0 {
		return errors.New("alerting.dedup_window must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "_HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv(envPrefix + "_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv(envPrefix + "_NATS_USERNAME"); v != "" {
		cfg.NATS.Username = v
	}
	if v := os.Getenv(envPrefix + "_NATS_PASSWORD"); v != "" {
		cfg.NATS.Password = v
	}
	if v := os.Getenv(envPrefix + "_NATS_TOKEN"); v != "" {
		cfg.NATS.Token = v
	}
	if v := os.Getenv(envPrefix + "_NATS_SUBJECT_PREFIX"); v != "" {
		cfg.NATS.SubjectPrefix = v
	}
	if v := os.Getenv(envPrefix + "_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv(envPrefix + "_MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv(envPrefix + "_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv(envPrefix + "_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv(envPrefix + "_ROUTER_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Router.Partitions = n
		}
	}
	if v := os.Getenv(envPrefix + "_ROUTER_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Router.QueueSize = n
		}
	}
	if v := os.Getenv(envPrefix + "_ALERT_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.DedupWindow = Duration(d)
		}
	}
}
