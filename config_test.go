package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{
		WriteKey:      "wk-test",
		IngestionHost: "https://ingest.example.com/",
	}
	cfg.applyDefaults()

	assert.Equal(t, "https://ingest.example.com", cfg.IngestionHost, "trailing slash is trimmed")
	assert.Equal(t, DefaultEndpointPath, cfg.EndpointPath)
	assert.Equal(t, DefaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, DefaultMaxQueueEvents, cfg.MaxQueueEvents)
	assert.Equal(t, DefaultAutoFlushThreshold, cfg.AutoFlushThreshold)
	assert.Equal(t, DefaultMaxBatchSize, cfg.InitialMaxBatchSize)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.IsType(t, NopLogger{}, cfg.StructuredLogger)
	assert.IsType(t, NopMetrics{}, cfg.Metrics)

	require.NoError(t, cfg.validate())
}

func TestConfigDefaultsKeepExplicitValues(t *testing.T) {
	cfg := &Config{
		WriteKey:            "wk-test",
		IngestionHost:       "http://localhost:8080",
		FlushInterval:       time.Second,
		InitialMaxBatchSize: 7,
	}
	cfg.applyDefaults()

	assert.Equal(t, time.Second, cfg.FlushInterval)
	assert.Equal(t, 7, cfg.InitialMaxBatchSize)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{WriteKey: "wk-test", IngestionHost: "https://ingest.example.com"}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing write key", func(c *Config) { c.WriteKey = "" }, ErrMissingWriteKey},
		{"missing host", func(c *Config) { c.IngestionHost = "" }, ErrMissingIngestionHost},
		{"bad scheme", func(c *Config) { c.IngestionHost = "ftp://example.com" }, ErrInvalidIngestionHost},
		{"no host part", func(c *Config) { c.IngestionHost = "https://" }, ErrInvalidIngestionHost},
		{"relative endpoint path", func(c *Config) { c.EndpointPath = "v1/batch" }, ErrInvalidEndpointPath},
		{"negative flush interval", func(c *Config) { c.FlushInterval = -time.Second }, ErrInvalidFlushInterval},
		{"negative queue capacity", func(c *Config) { c.MaxQueueEvents = -1 }, ErrInvalidQueueCapacity},
		{"negative threshold", func(c *Config) { c.AutoFlushThreshold = -1 }, ErrInvalidFlushThreshold},
		{"zero batch size", func(c *Config) { c.InitialMaxBatchSize = -1 }, ErrInvalidBatchSize},
		{"negative timeout", func(c *Config) { c.HTTPTimeout = -time.Second }, ErrInvalidHTTPTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.validate(), tt.wantErr)
		})
	}

	assert.NoError(t, valid().validate())
}

func TestConfigIngestChannelCapacity(t *testing.T) {
	tests := []struct {
		queueEvents int
		want        int
	}{
		{2000, 1000},
		{100, 100},  // floored at the minimum
		{199, 100},  // 99 would be below the floor
		{5000, 2500},
	}
	for _, tt := range tests {
		cfg := &Config{MaxQueueEvents: tt.queueEvents}
		assert.Equal(t, tt.want, cfg.ingestChannelCapacity(), "queue=%d", tt.queueEvents)
	}
}

func TestConfigEndpointURL(t *testing.T) {
	cfg := &Config{IngestionHost: "https://ingest.example.com", EndpointPath: "/v1/batch"}
	assert.Equal(t, "https://ingest.example.com/v1/batch", cfg.endpointURL())
}

func TestConfigStringMasksWriteKey(t *testing.T) {
	cfg := DefaultConfig("wk_live_8f3a91c2d4", "https://ingest.example.com")
	s := cfg.String()
	assert.NotContains(t, s, "wk_live_8f3a91c2d4")
	assert.Contains(t, s, "c2d4")
}

func TestConfigPresets(t *testing.T) {
	dev := DevelopmentConfig("wk-test", "http://localhost:8080")
	dev.applyDefaults()
	require.NoError(t, dev.validate())
	assert.True(t, dev.Tracing)
	assert.Less(t, dev.FlushInterval, DefaultFlushInterval)

	ht := HighThroughputConfig("wk-test", "https://ingest.example.com")
	ht.applyDefaults()
	require.NoError(t, ht.validate())
	assert.Greater(t, ht.MaxQueueEvents, DefaultMaxQueueEvents)
	assert.Greater(t, ht.InitialMaxBatchSize, DefaultMaxBatchSize)
}
