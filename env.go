package pulse

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix for all configuration environment variables, e.g.
// PULSE_WRITE_KEY, PULSE_INGESTION_HOST, PULSE_FLUSH_INTERVAL.
const envPrefix = "pulse"

// ConfigFromEnv builds a Config from PULSE_* environment variables. Duration
// variables accept Go duration strings ("10s", "1m30s"). Seams (identity
// store, context provider, logger, callbacks) keep their defaults and can be
// overridden with options afterwards.
func ConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("pulse: reading configuration from environment: %w", err)
	}
	return &cfg, nil
}

// NewFromEnv creates a client from PULSE_* environment variables. Explicit
// options override environment values.
//
//	client, err := pulse.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func NewFromEnv(opts ...ConfigOption) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// fileConfig mirrors Config for YAML decoding. Durations are strings so that
// "10s" style values work; yaml.v3 has no native time.Duration support.
type fileConfig struct {
	WriteKey              string   `yaml:"write_key"`
	IngestionHost         string   `yaml:"ingestion_host"`
	EndpointPath          string   `yaml:"endpoint_path"`
	FlushInterval         string   `yaml:"flush_interval"`
	MaxQueueEvents        int      `yaml:"max_queue_events"`
	AutoFlushThreshold    int      `yaml:"auto_flush_threshold"`
	InitialMaxBatchSize   int      `yaml:"initial_max_batch_size"`
	HTTPTimeout           string   `yaml:"http_timeout"`
	BatchSizeRestoreAfter int      `yaml:"batch_size_restore_after"`
	Tracing               bool     `yaml:"tracing"`
	ShutdownTimeout       string   `yaml:"shutdown_timeout"`
	IdentityDir           string   `yaml:"identity_dir"`
	App                   *AppInfo `yaml:"app"`
}

// LoadConfigFile reads a YAML configuration file into a Config.
//
//	write_key: wk-xxx
//	ingestion_host: https://ingest.example.com
//	flush_interval: 5s
//	max_queue_events: 5000
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pulse: reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("pulse: parsing config file %s: %w", path, err)
	}

	cfg := &Config{
		WriteKey:              fc.WriteKey,
		IngestionHost:         fc.IngestionHost,
		EndpointPath:          fc.EndpointPath,
		MaxQueueEvents:        fc.MaxQueueEvents,
		AutoFlushThreshold:    fc.AutoFlushThreshold,
		InitialMaxBatchSize:   fc.InitialMaxBatchSize,
		BatchSizeRestoreAfter: fc.BatchSizeRestoreAfter,
		Tracing:               fc.Tracing,
		IdentityDir:           fc.IdentityDir,
		App:                   fc.App,
	}

	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{fc.FlushInterval, &cfg.FlushInterval, "flush_interval"},
		{fc.HTTPTimeout, &cfg.HTTPTimeout, "http_timeout"},
		{fc.ShutdownTimeout, &cfg.ShutdownTimeout, "shutdown_timeout"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("pulse: parsing %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}
