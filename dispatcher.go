package pulse

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool"

	"github.com/pulsekit/pulse-go/pkg/transport"
)

// retryFloor is the minimum delay before retrying a failed batch. Server
// backoff hints and the circuit cooldown can only raise it.
const retryFloor = time.Second

// oversizedRetryDelay is the pause before retrying after a 413 shrank the
// batch size. The endpoint is healthy, so there is no reason to wait a full
// retry period.
const oversizedRetryDelay = 500 * time.Millisecond

// dispatcher owns transmission: the periodic flush loop, batch construction,
// response classification, retry scheduling, and the circuit breaker. Exactly
// one flush body runs at a time; late callers no-op instead of queueing.
type dispatcher struct {
	cfg       *Config
	queue     *eventQueue
	transport *transport.Client
	circuit   *transport.CircuitBreaker
	log       StructuredLogger
	metrics   Metrics

	// maxBatchSize starts at InitialMaxBatchSize and halves on 413
	// responses, floored at 1.
	maxBatchSize atomic.Int64

	// successStreak counts consecutive successful batches for the optional
	// batch-size restore policy. Touched only inside the serialized flush
	// body.
	successStreak int

	running *abool.AtomicBool
	paused  *abool.AtomicBool
	tracing *abool.AtomicBool

	// flushMu serializes the flush body via TryLock.
	flushMu sync.Mutex

	// flushCh wakes the loop for a threshold-driven flush.
	flushCh chan struct{}

	// mu guards the loop handle and the retry timer.
	mu         sync.Mutex
	loopStop   chan struct{}
	loopDone   chan struct{}
	retryTimer *time.Timer
}

// newDispatcher wires a dispatcher around the queue. Call Start to begin the
// periodic flush loop.
func newDispatcher(cfg *Config, queue *eventQueue, client *transport.Client) *dispatcher {
	d := &dispatcher{
		cfg:       cfg,
		queue:     queue,
		transport: client,
		log:       cfg.StructuredLogger,
		metrics:   cfg.Metrics,
		running:   abool.New(),
		paused:    abool.New(),
		tracing:   abool.NewBool(cfg.Tracing),
		flushCh:   make(chan struct{}, 1),
	}
	d.maxBatchSize.Store(int64(cfg.InitialMaxBatchSize))
	d.circuit = transport.NewCircuitBreakerWithOptions(
		transport.WithStateChangeCallback(func(from, to transport.CircuitState) {
			d.log.Info("circuit breaker state changed", "from", from, "to", to)
		}),
	)
	return d
}

// Start launches the periodic flush loop. Idempotent: a running loop is
// cancelled and replaced, so a restart after a fatal halt picks up cleanly.
func (d *dispatcher) Start() {
	d.mu.Lock()
	if d.loopStop != nil {
		close(d.loopStop)
		d.loopStop = nil
		loopDone := d.loopDone
		d.loopDone = nil
		d.mu.Unlock()
		<-loopDone
		d.mu.Lock()
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	d.loopStop = stop
	d.loopDone = done
	d.running.Set()
	d.mu.Unlock()

	go d.loop(stop, done)
}

// Stop cancels the periodic loop and any armed retry. An in-flight HTTP call
// runs to completion; only future attempts are prevented.
func (d *dispatcher) Stop() {
	d.running.UnSet()

	d.mu.Lock()
	stop := d.loopStop
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	d.mu.Unlock()

	d.stopLoop(stop)
}

// stopLoop tears down the loop identified by stop and waits for it to exit.
// A loop that has already been replaced by a later Start is left alone, so a
// deferred teardown cannot kill its successor.
func (d *dispatcher) stopLoop(stop chan struct{}) {
	d.mu.Lock()
	if stop == nil || d.loopStop != stop {
		d.mu.Unlock()
		return
	}
	close(d.loopStop)
	d.loopStop = nil
	loopDone := d.loopDone
	d.loopDone = nil
	d.mu.Unlock()

	if loopDone != nil {
		<-loopDone
	}
}

// loop ticks every FlushInterval and also wakes for threshold-driven
// flushes. Pause suppresses only the periodic tick.
func (d *dispatcher) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if d.paused.IsSet() {
				continue
			}
		case <-d.flushCh:
		}
		d.Flush()
	}
}

// Offer is the post-enrichment entry point: enqueue, account for overflow,
// and wake the loop when the queue has grown past the auto-flush threshold.
func (d *dispatcher) Offer(e *EnrichedEvent) {
	if evicted := d.queue.Enqueue(e); evicted != nil {
		d.metrics.IncrementCounter(dropMetric(DropQueueOverflow), 1)
		d.log.Warn("event queue full, dropped oldest event",
			"capacity", d.cfg.MaxQueueEvents, "dropped_message_id", evicted.MessageID)
	}

	size := d.queue.Size()
	d.metrics.SetGauge(metricQueueSize, float64(size))
	if size >= d.cfg.AutoFlushThreshold {
		d.signalFlush()
	}
}

// signalFlush wakes the loop without blocking; a pending wakeup coalesces.
func (d *dispatcher) signalFlush() {
	select {
	case d.flushCh <- struct{}{}:
	default:
	}
}

// Flush runs one transmission pass: drain and send batches until the queue is
// empty or a failure schedules a retry. Concurrent callers return immediately
// while a pass is in progress, and a stopped dispatcher no-ops.
func (d *dispatcher) Flush() {
	if !d.flushMu.TryLock() {
		return
	}
	defer d.flushMu.Unlock()

	if d.running.IsNotSet() {
		return
	}

	start := time.Now()
	d.processUntilEmpty()
	d.metrics.RecordDuration(metricFlushDuration, time.Since(start))
	d.metrics.SetGauge(metricQueueSize, float64(d.queue.Size()))
}

// processUntilEmpty is the flush body. Must be called with flushMu held.
func (d *dispatcher) processUntilEmpty() {
	for {
		if d.queue.Size() == 0 {
			return
		}

		if wait := d.circuit.BeforeRequest(); wait > 0 {
			d.log.Debug("circuit breaker deferring flush", "wait", wait)
			d.scheduleRetry(wait)
			return
		}

		batch := d.queue.Drain(int(d.maxBatchSize.Load()))
		if len(batch) == 0 {
			return
		}

		if !d.sendBatch(batch) {
			return
		}
	}
}

// sendBatch stamps, serializes, and posts one batch. It returns true when the
// flush loop should keep draining and false when the pass is over, either
// because a retry was scheduled or because the pipeline halted.
func (d *dispatcher) sendBatch(batch []*EnrichedEvent) bool {
	sentAt := formatTimestamp(time.Now())
	for _, e := range batch {
		e.SentAt = sentAt
	}

	payload, err := json.Marshal(batchPayload{Batch: batch})
	if err != nil {
		// Unserializable property values; retrying cannot fix this.
		d.metrics.IncrementCounter(dropMetric(DropClientError), int64(len(batch)))
		d.log.Error("dropping batch: payload not serializable",
			"batch_size", len(batch), "error", err)
		return true
	}

	var headers map[string]string
	if d.tracing.IsSet() {
		headers = map[string]string{"Trace": "true"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HTTPTimeout)
	resp, err := d.transport.PostJSON(ctx, d.cfg.endpointURL(), payload, headers)
	cancel()

	if err != nil {
		d.requeue(batch)
		d.circuit.OnFailure()
		d.log.Warn("batch send failed, will retry",
			"batch_size", len(batch), "error", err)
		d.scheduleRetry(retryFloor)
		return false
	}

	return d.handleResponse(resp, batch)
}

// handleResponse classifies one HTTP response and applies the matching
// recovery action. Returns true to keep draining the queue.
func (d *dispatcher) handleResponse(resp *transport.Response, batch []*EnrichedEvent) bool {
	switch {
	case resp.IsSuccess():
		d.circuit.OnSuccess()
		d.metrics.IncrementCounter(metricBatchesSent, 1)
		d.log.Debug("batch sent", "batch_size", len(batch), "status", resp.StatusCode)
		d.recordSuccessForRestore()
		return true

	case isRetryableStatus(resp.StatusCode):
		d.successStreak = 0
		d.circuit.OnFailure()
		d.requeue(batch)

		wait := retryFloor
		if cooldown := d.circuit.BeforeRequest(); cooldown > wait {
			wait = cooldown
		}
		if hint, ok := transport.ParseRetryAfter(resp.Headers, time.Now()); ok && hint > wait {
			wait = hint
		}
		d.log.Warn("batch rejected with retryable status, will retry",
			"status", resp.StatusCode, "batch_size", len(batch), "wait", wait)
		d.scheduleRetry(wait)
		return false

	case resp.StatusCode == 413:
		d.successStreak = 0
		d.circuit.OnNonRetryable()
		return d.handlePayloadTooLarge(batch)

	case IsFatalStatus(resp.StatusCode):
		d.handleFatal(resp.StatusCode)
		return false

	default:
		// Remaining 4xx and anything unclassifiable: a client-side defect
		// that retrying will not fix. Drop and move on.
		d.successStreak = 0
		d.circuit.OnNonRetryable()
		d.metrics.IncrementCounter(dropMetric(DropClientError), int64(len(batch)))
		d.log.Error("dropping batch: endpoint rejected it",
			"status", resp.StatusCode, "batch_size", len(batch))
		return true
	}
}

// handlePayloadTooLarge halves the batch size and retries, or drops the batch
// when it is already a single event the endpoint refuses to take.
func (d *dispatcher) handlePayloadTooLarge(batch []*EnrichedEvent) bool {
	current := d.maxBatchSize.Load()
	if current <= 1 {
		d.metrics.IncrementCounter(dropMetric(DropOversized), int64(len(batch)))
		d.log.Error("dropping event: oversized even as a batch of one",
			"message_id", batch[0].MessageID)
		return false
	}

	reduced := current / 2
	if reduced < 1 {
		reduced = 1
	}
	d.maxBatchSize.Store(reduced)
	d.requeue(batch)
	d.log.Warn("payload too large, reducing batch size",
		"previous", current, "reduced", reduced)
	d.scheduleRetry(oversizedRetryDelay)
	return false
}

// handleFatal halts transmission on 401/403/404. Retrying against a bad
// write key or endpoint only burns quota, so the queue is cleared and the
// loops shut down; only a new Start revives transmission.
func (d *dispatcher) handleFatal(status int) {
	dropped := d.queue.Clear()
	d.metrics.IncrementCounter(dropMetric(DropFatal), int64(dropped))
	d.log.Error("fatal configuration error, halting transmission",
		"status", status, "dropped", dropped,
		"write_key", MaskWriteKey(d.cfg.WriteKey))

	// Tearing down waits for the loop goroutine, so it runs outside the
	// flush body: a tick-driven flush must not deadlock against its own
	// loop. The teardown is pinned to the current loop; a Start racing it
	// is unaffected.
	d.running.UnSet()
	d.mu.Lock()
	stop := d.loopStop
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	d.mu.Unlock()
	go d.stopLoop(stop)

	if d.cfg.ErrorHandler != nil {
		d.cfg.ErrorHandler(&FatalConfigError{StatusCode: status})
	}
	if d.cfg.OnFatalConfigError != nil {
		d.cfg.OnFatalConfigError(status)
	}
}

// requeue puts a failed batch back at the head of the queue.
func (d *dispatcher) requeue(batch []*EnrichedEvent) {
	d.metrics.IncrementCounter(metricBatchesRequeued, 1)
	if evicted := d.queue.RequeueFront(batch); evicted > 0 {
		d.metrics.IncrementCounter(dropMetric(DropRequeueOverflow), int64(evicted))
		d.log.Warn("queue full on requeue, dropped newest events", "dropped", evicted)
	}
}

// recordSuccessForRestore advances the optional batch-size restore policy:
// after BatchSizeRestoreAfter consecutive successes a 413-reduced size
// doubles, capped at the configured initial size. Runs inside the flush body.
func (d *dispatcher) recordSuccessForRestore() {
	restoreAfter := d.cfg.BatchSizeRestoreAfter
	if restoreAfter <= 0 {
		return
	}

	current := d.maxBatchSize.Load()
	if current >= int64(d.cfg.InitialMaxBatchSize) {
		d.successStreak = 0
		return
	}

	d.successStreak++
	if d.successStreak < restoreAfter {
		return
	}
	d.successStreak = 0

	restored := current * 2
	if restored > int64(d.cfg.InitialMaxBatchSize) {
		restored = int64(d.cfg.InitialMaxBatchSize)
	}
	d.maxBatchSize.Store(restored)
	d.log.Info("restoring batch size after sustained successes",
		"previous", current, "restored", restored)
}

// scheduleRetry arms a one-shot flush after delay, replacing any armed timer
// so retries never multiply. A stopped dispatcher arms nothing.
func (d *dispatcher) scheduleRetry(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.IsNotSet() {
		return
	}
	if d.retryTimer != nil {
		d.retryTimer.Stop()
	}
	d.retryTimer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		d.retryTimer = nil
		d.mu.Unlock()
		d.Flush()
	})
}

// pendingRetry reports whether a retry timer is armed.
func (d *dispatcher) pendingRetry() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retryTimer != nil
}

// SetTracing toggles the Trace request header at runtime.
func (d *dispatcher) SetTracing(enabled bool) {
	d.tracing.SetTo(enabled)
}
