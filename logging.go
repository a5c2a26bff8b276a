package pulse

import (
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is a minimal printf-style logging interface, compatible with the
// standard library log.Logger.
type Logger interface {
	// Printf logs a formatted message.
	Printf(format string, v ...any)
}

// StructuredLogger provides leveled, key-value logging for the SDK. This is
// the preferred logging interface; adapters exist for slog
// (NewSlogAdapter), logrus (NewLogrusAdapter), and printf-style loggers
// (WrapPrintfLogger).
//
// The SDK is silent by default (NopLogger). Configure a logger to see drops,
// overflows, retries, and circuit transitions:
//
//	client, _ := pulse.New(writeKey, host,
//	    pulse.WithStructuredLogger(pulse.NewLogrusAdapter(logrus.StandardLogger())),
//	)
type StructuredLogger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// printfLoggerWrapper adapts a printf-style logger to StructuredLogger.
type printfLoggerWrapper struct {
	logger Logger
}

// WrapPrintfLogger wraps a printf-style Logger (like *log.Logger) to implement
// StructuredLogger. All messages are logged at the same level with formatted
// key-value pairs appended.
func WrapPrintfLogger(l Logger) StructuredLogger {
	return &printfLoggerWrapper{logger: l}
}

// WrapStdLogger wraps a standard library *log.Logger to implement
// StructuredLogger. Convenience equivalent of WrapPrintfLogger(l).
func WrapStdLogger(l *log.Logger) StructuredLogger {
	return &printfLoggerWrapper{logger: l}
}

func (w *printfLoggerWrapper) Debug(msg string, args ...any) {
	w.logger.Printf("[DEBUG] " + msg + formatArgs(args))
}

func (w *printfLoggerWrapper) Info(msg string, args ...any) {
	w.logger.Printf("[INFO] " + msg + formatArgs(args))
}

func (w *printfLoggerWrapper) Warn(msg string, args ...any) {
	w.logger.Printf("[WARN] " + msg + formatArgs(args))
}

func (w *printfLoggerWrapper) Error(msg string, args ...any) {
	w.logger.Printf("[ERROR] " + msg + formatArgs(args))
}

var _ StructuredLogger = (*printfLoggerWrapper)(nil)

// formatArgs formats structured logging arguments as a string. Dangling keys
// without a value are dropped.
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	result := " |"
	for i := 0; i+1 < len(args); i += 2 {
		result += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	return result
}

// SlogAdapter adapts a slog.Logger to the StructuredLogger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Debug implements StructuredLogger.Debug.
func (a *SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }

// Info implements StructuredLogger.Info.
func (a *SlogAdapter) Info(msg string, args ...any) { a.logger.Info(msg, args...) }

// Warn implements StructuredLogger.Warn.
func (a *SlogAdapter) Warn(msg string, args ...any) { a.logger.Warn(msg, args...) }

// Error implements StructuredLogger.Error.
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

var _ StructuredLogger = (*SlogAdapter)(nil)

// LogrusAdapter adapts a logrus.Logger to the StructuredLogger interface.
// Key-value pairs become logrus fields.
type LogrusAdapter struct {
	logger *logrus.Logger
}

// NewLogrusAdapter creates a LogrusAdapter wrapping the given logrus.Logger.
// If logger is nil, logrus.StandardLogger() is used.
func NewLogrusAdapter(logger *logrus.Logger) *LogrusAdapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusAdapter{logger: logger}
}

func (a *LogrusAdapter) entry(args []any) *logrus.Entry {
	if len(args) == 0 {
		return logrus.NewEntry(a.logger)
	}
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return a.logger.WithFields(fields)
}

// Debug implements StructuredLogger.Debug.
func (a *LogrusAdapter) Debug(msg string, args ...any) { a.entry(args).Debug(msg) }

// Info implements StructuredLogger.Info.
func (a *LogrusAdapter) Info(msg string, args ...any) { a.entry(args).Info(msg) }

// Warn implements StructuredLogger.Warn.
func (a *LogrusAdapter) Warn(msg string, args ...any) { a.entry(args).Warn(msg) }

// Error implements StructuredLogger.Error.
func (a *LogrusAdapter) Error(msg string, args ...any) { a.entry(args).Error(msg) }

var _ StructuredLogger = (*LogrusAdapter)(nil)

// NopLogger is a logger that discards all log messages.
// This is the default; the SDK never writes to stderr unless asked to.
type NopLogger struct{}

// Printf implements Logger.Printf.
func (NopLogger) Printf(format string, v ...any) {}

// Debug implements StructuredLogger.Debug.
func (NopLogger) Debug(msg string, args ...any) {}

// Info implements StructuredLogger.Info.
func (NopLogger) Info(msg string, args ...any) {}

// Warn implements StructuredLogger.Warn.
func (NopLogger) Warn(msg string, args ...any) {}

// Error implements StructuredLogger.Error.
func (NopLogger) Error(msg string, args ...any) {}

var (
	_ Logger           = NopLogger{}
	_ StructuredLogger = NopLogger{}
)

// MaskWriteKey masks a write key for safe logging, keeping only the last four
// characters visible.
//
//	MaskWriteKey("wk_live_8f3a91c2d4") => "**************c2d4"
//	MaskWriteKey("abc")                => "****"
func MaskWriteKey(s string) string {
	if s == "" {
		return ""
	}
	const visibleSuffix = 4
	if len(s) <= visibleSuffix {
		return "****"
	}
	masked := make([]byte, len(s)-visibleSuffix)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + s[len(s)-visibleSuffix:]
}

// Metrics is an optional interface for SDK telemetry. Implementations must be
// safe for concurrent use.
type Metrics interface {
	// IncrementCounter increments a counter metric.
	IncrementCounter(name string, value int64)
	// RecordDuration records a duration metric.
	RecordDuration(name string, duration time.Duration)
	// SetGauge sets a gauge metric.
	SetGauge(name string, value float64)
}

// Metric names emitted by the pipeline. Drop counters append the DropReason,
// e.g. "pulse.events.dropped.queue_overflow".
const (
	metricEventsDropped   = "pulse.events.dropped"
	metricBatchesSent     = "pulse.batches.sent"
	metricBatchesRequeued = "pulse.batches.requeued"
	metricQueueSize       = "pulse.queue.size"
	metricFlushDuration   = "pulse.flush.duration"
)

// NopMetrics discards all metrics. This is the default.
type NopMetrics struct{}

// IncrementCounter implements Metrics.
func (NopMetrics) IncrementCounter(name string, value int64) {}

// RecordDuration implements Metrics.
func (NopMetrics) RecordDuration(name string, duration time.Duration) {}

// SetGauge implements Metrics.
func (NopMetrics) SetGauge(name string, value float64) {}

var _ Metrics = NopMetrics{}
