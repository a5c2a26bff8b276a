package pulse

import (
	"errors"
	"fmt"
)

// DropReason categorizes why the pipeline discarded an event or a batch.
// Reasons appear in log fields and as metric name suffixes.
type DropReason string

// Drop reasons.
const (
	DropIngestFull      DropReason = "ingest_full"       // ingest channel saturated at send time
	DropEnrichFailure   DropReason = "enrich_failure"    // enrichment step failed
	DropQueueOverflow   DropReason = "queue_overflow"    // oldest event evicted on enqueue
	DropRequeueOverflow DropReason = "requeue_overflow"  // newest event evicted on requeue
	DropClientError     DropReason = "client_error"      // non-retryable 4xx response
	DropOversized       DropReason = "payload_too_large" // 413 at batch size 1
	DropFatal           DropReason = "fatal_config"      // queue cleared on fatal response
	DropReset           DropReason = "reset"             // queue cleared by Reset
	DropInvalid         DropReason = "invalid_event"     // rejected at the public API boundary
)

// Sentinel errors for configuration validation.
var (
	ErrMissingWriteKey       = errors.New("pulse: write key is required")
	ErrMissingIngestionHost  = errors.New("pulse: ingestion host is required")
	ErrInvalidIngestionHost  = errors.New("pulse: ingestion host must be an http or https URL without a trailing slash")
	ErrInvalidEndpointPath   = errors.New("pulse: endpoint path must start with /")
	ErrInvalidFlushInterval  = errors.New("pulse: flush interval must be positive")
	ErrInvalidQueueCapacity  = errors.New("pulse: max queue events must be positive")
	ErrInvalidFlushThreshold = errors.New("pulse: auto flush threshold must be positive")
	ErrInvalidBatchSize      = errors.New("pulse: initial max batch size must be at least 1")
	ErrInvalidHTTPTimeout    = errors.New("pulse: http timeout must be positive")
)

// FatalConfigError reports a 401, 403, or 404 response from the ingestion
// endpoint. It halts transmission: the dispatcher clears the queue, stops its
// loops, and invokes the OnFatalConfigError callback. Retrying would only burn
// quota against a misconfigured write key or endpoint.
type FatalConfigError struct {
	// StatusCode is the HTTP status that triggered the halt.
	StatusCode int
}

// Error implements the error interface.
func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("pulse: fatal configuration error: ingestion endpoint returned %d", e.StatusCode)
}

// IsFatalStatus reports whether an HTTP status halts the pipeline.
func IsFatalStatus(status int) bool {
	switch status {
	case 401, 403, 404:
		return true
	}
	return false
}

// isRetryableStatus reports whether an HTTP status is worth retrying with the
// same batch: server errors, request timeout, and rate limiting.
func isRetryableStatus(status int) bool {
	return status >= 500 && status <= 599 || status == 408 || status == 429
}
