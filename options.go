package pulse

import (
	"net/http"
	"time"
)

// ConfigOption is a function that modifies a Config.
type ConfigOption func(*Config)

// WithEndpointPath sets the ingestion endpoint path (default "/v1/batch").
func WithEndpointPath(path string) ConfigOption {
	return func(c *Config) {
		c.EndpointPath = path
	}
}

// WithFlushInterval sets the period of the background flush loop.
func WithFlushInterval(interval time.Duration) ConfigOption {
	return func(c *Config) {
		c.FlushInterval = interval
	}
}

// WithMaxQueueEvents sets the event queue capacity.
func WithMaxQueueEvents(n int) ConfigOption {
	return func(c *Config) {
		c.MaxQueueEvents = n
	}
}

// WithAutoFlushThreshold sets the queue size that schedules an immediate flush.
func WithAutoFlushThreshold(n int) ConfigOption {
	return func(c *Config) {
		c.AutoFlushThreshold = n
	}
}

// WithMaxBatchSize sets the initial per-request batch size.
func WithMaxBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.InitialMaxBatchSize = n
	}
}

// WithHTTPTimeout sets the wall-clock budget for one ingestion POST.
func WithHTTPTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.HTTPTimeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client for ingestion POSTs.
func WithHTTPClient(client *http.Client) ConfigOption {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithBatchSizeRestoreAfter enables upward recovery of a 413-reduced batch
// size after n consecutive successful batches. Zero (the default) keeps the
// reduction for the session.
func WithBatchSizeRestoreAfter(n int) ConfigOption {
	return func(c *Config) {
		c.BatchSizeRestoreAfter = n
	}
}

// WithTracing enables the "Trace: true" request header at construction.
func WithTracing(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Tracing = enabled
	}
}

// WithShutdownTimeout bounds the graceful drain performed by Close.
func WithShutdownTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.ShutdownTimeout = timeout
	}
}

// WithAppInfo sets the host application metadata for the context.app block.
func WithAppInfo(app AppInfo) ConfigOption {
	return func(c *Config) {
		c.App = &app
	}
}

// WithIdentityStore sets the identity store consumed by the enricher.
func WithIdentityStore(store IdentityStore) ConfigOption {
	return func(c *Config) {
		c.Identity = store
	}
}

// WithIdentityDir sets the directory for the default file-backed identity
// store. Ignored when WithIdentityStore is used.
func WithIdentityDir(dir string) ConfigOption {
	return func(c *Config) {
		c.IdentityDir = dir
	}
}

// WithContextProvider sets the environmental context provider.
func WithContextProvider(provider ContextProvider) ConfigOption {
	return func(c *Config) {
		c.ContextProvider = provider
	}
}

// WithLogger sets a printf-style logger.
//
// Prefer WithStructuredLogger for leveled logging:
//
//	client, _ := pulse.New(writeKey, host,
//	    pulse.WithStructuredLogger(pulse.WrapStdLogger(log.Default())),
//	)
func WithLogger(logger Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithStructuredLogger sets a structured logger.
func WithStructuredLogger(logger StructuredLogger) ConfigOption {
	return func(c *Config) {
		c.StructuredLogger = logger
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(metrics Metrics) ConfigOption {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithOnFatalConfigError sets the callback invoked when a 401, 403, or 404
// response halts the pipeline.
func WithOnFatalConfigError(fn func(statusCode int)) ConfigOption {
	return func(c *Config) {
		c.OnFatalConfigError = fn
	}
}

// WithErrorHandler sets an error callback for async failures.
func WithErrorHandler(handler func(error)) ConfigOption {
	return func(c *Config) {
		c.ErrorHandler = handler
	}
}
