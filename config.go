package pulse

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default configuration values.
const (
	// DefaultEndpointPath is the ingestion endpoint path.
	DefaultEndpointPath = "/v1/batch"

	// DefaultFlushInterval is the period of the dispatcher's flush loop.
	DefaultFlushInterval = 10 * time.Second

	// DefaultMaxQueueEvents is the event queue capacity.
	DefaultMaxQueueEvents = 2000

	// DefaultAutoFlushThreshold is the queue size that schedules an
	// immediate flush.
	DefaultAutoFlushThreshold = 20

	// DefaultMaxBatchSize is the initial per-request batch size. The
	// dispatcher halves it on 413 responses, down to 1.
	DefaultMaxBatchSize = 100

	// DefaultHTTPTimeout is the wall-clock budget for one ingestion POST.
	DefaultHTTPTimeout = 8 * time.Second

	// DefaultShutdownTimeout bounds the graceful drain in Close.
	DefaultShutdownTimeout = 5 * time.Second

	// minIngestChannelCapacity floors the producer-side channel.
	minIngestChannelCapacity = 100
)

// Config holds all client configuration. The zero value is not usable; start
// from New, DefaultConfig, or NewFromEnv.
type Config struct {
	// WriteKey is the tenant credential stamped on every event (required).
	WriteKey string `envconfig:"WRITE_KEY"`

	// IngestionHost is the base URL of the ingestion endpoint (required).
	// Must be http or https; a trailing slash is trimmed.
	IngestionHost string `envconfig:"INGESTION_HOST"`

	// EndpointPath is the POST path appended to IngestionHost.
	// Defaults to "/v1/batch".
	EndpointPath string `envconfig:"ENDPOINT_PATH"`

	// FlushInterval is the period of the background flush loop.
	// Defaults to 10 seconds.
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL"`

	// MaxQueueEvents is the capacity of the event queue. When full, the
	// oldest event is dropped to admit a new one. Defaults to 2000.
	MaxQueueEvents int `envconfig:"MAX_QUEUE_EVENTS"`

	// AutoFlushThreshold is the queue size at which an immediate flush is
	// scheduled. Defaults to 20.
	AutoFlushThreshold int `envconfig:"AUTO_FLUSH_THRESHOLD"`

	// InitialMaxBatchSize is the starting batch size. Defaults to 100.
	InitialMaxBatchSize int `envconfig:"INITIAL_MAX_BATCH_SIZE"`

	// HTTPTimeout is the total wall-clock timeout for one ingestion POST.
	// Expiry surfaces as a transport error. Defaults to 8 seconds.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT"`

	// BatchSizeRestoreAfter, when positive, doubles a 413-reduced batch
	// size (capped at InitialMaxBatchSize) after that many consecutive
	// successful batches. Zero keeps the reduction for the session.
	BatchSizeRestoreAfter int `envconfig:"BATCH_SIZE_RESTORE_AFTER"`

	// Tracing adds a "Trace: true" header to every ingestion request.
	// Toggleable at runtime via Client.SetTracing.
	Tracing bool `envconfig:"TRACING"`

	// ShutdownTimeout bounds the graceful drain performed by Close.
	// Defaults to 5 seconds.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`

	// App describes the host application for the context.app block.
	App *AppInfo `ignored:"true"`

	// IdentityDir is the directory for the default file-backed identity
	// store. Ignored when Identity is set. Defaults to the user config
	// directory under "pulse".
	IdentityDir string `envconfig:"IDENTITY_DIR"`

	// Identity supplies anonymous/user/group/advertising IDs to the
	// enricher. Defaults to a FileIdentityStore under IdentityDir.
	Identity IdentityStore `ignored:"true"`

	// ContextProvider supplies the environmental context snapshot.
	// Defaults to a cached host collector.
	ContextProvider ContextProvider `ignored:"true"`

	// HTTPClient overrides the HTTP client used for ingestion POSTs.
	// If nil, a client with HTTPTimeout is constructed.
	HTTPClient *http.Client `ignored:"true"`

	// Logger is used for printf-style SDK logging.
	// For structured logging, set StructuredLogger instead.
	Logger Logger `ignored:"true"`

	// StructuredLogger is used for leveled SDK logging. Takes precedence
	// over Logger. Defaults to NopLogger.
	StructuredLogger StructuredLogger `ignored:"true"`

	// Metrics receives pipeline telemetry. Defaults to NopMetrics.
	Metrics Metrics `ignored:"true"`

	// OnFatalConfigError is invoked with the HTTP status when a 401, 403,
	// or 404 response halts the pipeline.
	OnFatalConfigError func(statusCode int) `ignored:"true"`

	// ErrorHandler is called when async operations fail.
	// If nil, failures surface only through the logger and metrics.
	ErrorHandler func(error) `ignored:"true"`
}

// String returns a loggable description with the write key masked.
func (c *Config) String() string {
	return fmt.Sprintf("pulse.Config{WriteKey: %s, IngestionHost: %s, EndpointPath: %s, FlushInterval: %s}",
		MaskWriteKey(c.WriteKey), c.IngestionHost, c.EndpointPath, c.FlushInterval)
}

// applyDefaults fills zero-valued fields with defaults.
func (c *Config) applyDefaults() {
	c.IngestionHost = strings.TrimSuffix(c.IngestionHost, "/")

	if c.EndpointPath == "" {
		c.EndpointPath = DefaultEndpointPath
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxQueueEvents == 0 {
		c.MaxQueueEvents = DefaultMaxQueueEvents
	}
	if c.AutoFlushThreshold == 0 {
		c.AutoFlushThreshold = DefaultAutoFlushThreshold
	}
	if c.InitialMaxBatchSize == 0 {
		c.InitialMaxBatchSize = DefaultMaxBatchSize
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.StructuredLogger == nil {
		if c.Logger != nil {
			c.StructuredLogger = WrapPrintfLogger(c.Logger)
		} else {
			c.StructuredLogger = NopLogger{}
		}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
}

// validate checks that the configuration is usable.
func (c *Config) validate() error {
	if c.WriteKey == "" {
		return ErrMissingWriteKey
	}
	if c.IngestionHost == "" {
		return ErrMissingIngestionHost
	}

	u, err := url.Parse(c.IngestionHost)
	if err != nil {
		return fmt.Errorf("pulse: invalid ingestion host: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidIngestionHost
	}
	if u.Host == "" {
		return ErrInvalidIngestionHost
	}

	if !strings.HasPrefix(c.EndpointPath, "/") {
		return ErrInvalidEndpointPath
	}
	if c.FlushInterval <= 0 {
		return ErrInvalidFlushInterval
	}
	if c.MaxQueueEvents <= 0 {
		return ErrInvalidQueueCapacity
	}
	if c.AutoFlushThreshold <= 0 {
		return ErrInvalidFlushThreshold
	}
	if c.InitialMaxBatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if c.HTTPTimeout <= 0 {
		return ErrInvalidHTTPTimeout
	}
	if c.BatchSizeRestoreAfter < 0 {
		return fmt.Errorf("pulse: batch size restore threshold cannot be negative, got %d", c.BatchSizeRestoreAfter)
	}
	return nil
}

// ingestChannelCapacity sizes the producer-side channel: half the queue
// capacity, floored at 100.
func (c *Config) ingestChannelCapacity() int {
	capacity := c.MaxQueueEvents / 2
	if capacity < minIngestChannelCapacity {
		capacity = minIngestChannelCapacity
	}
	return capacity
}

// endpointURL joins the host and path for the ingestion POST.
func (c *Config) endpointURL() string {
	return c.IngestionHost + c.EndpointPath
}

// DefaultConfig returns a production-ready configuration with defaults
// applied lazily by NewWithConfig.
//
//	cfg := pulse.DefaultConfig("wk-xxx", "https://ingest.example.com")
//	client, err := pulse.NewWithConfig(cfg)
func DefaultConfig(writeKey, ingestionHost string) *Config {
	return &Config{
		WriteKey:      writeKey,
		IngestionHost: ingestionHost,
	}
}

// DevelopmentConfig returns a configuration tuned for local development:
// small batches, a short flush interval, and verbose logging through logrus.
func DevelopmentConfig(writeKey, ingestionHost string) *Config {
	return &Config{
		WriteKey:            writeKey,
		IngestionHost:       ingestionHost,
		FlushInterval:       2 * time.Second,
		AutoFlushThreshold:  5,
		InitialMaxBatchSize: 20,
		Tracing:             true,
		StructuredLogger:    NewLogrusAdapter(nil),
	}
}

// HighThroughputConfig returns a configuration tuned for high event volume:
// a large queue and batches, and a tight flush loop.
func HighThroughputConfig(writeKey, ingestionHost string) *Config {
	return &Config{
		WriteKey:            writeKey,
		IngestionHost:       ingestionHost,
		FlushInterval:       3 * time.Second,
		MaxQueueEvents:      10000,
		AutoFlushThreshold:  200,
		InitialMaxBatchSize: 250,
	}
}
