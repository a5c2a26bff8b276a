package pulse

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tevino/abool"

	"github.com/pulsekit/pulse-go/pkg/transport"
)

// Client is the public entry point of the SDK. Event methods are
// fire-and-forget: they hand a BaseEvent to the pipeline and return without
// blocking or surfacing delivery errors. Safe for concurrent use.
type Client struct {
	cfg      *Config
	queue    *eventQueue
	disp     *dispatcher
	enricher *enricher
	identity IdentityStore
	contexts ContextProvider
	log      StructuredLogger
	metrics  Metrics

	// accepting gates Offer during shutdown and reset.
	accepting *abool.AtomicBool
	closed    *abool.AtomicBool

	// mu guards the enricher swap on Reset and orders producer sends before
	// the inbox close: Offer sends under the read lock, Shutdown and Reset
	// close under the write lock.
	mu sync.RWMutex
}

// New creates a started client for the given write key and ingestion host.
//
//	client, err := pulse.New("wk-xxx", "https://ingest.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func New(writeKey, ingestionHost string, opts ...ConfigOption) (*Client, error) {
	cfg := DefaultConfig(writeKey, ingestionHost)
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a started client from an explicit configuration.
// Defaults are applied to zero-valued fields before validation.
func NewWithConfig(cfg *Config) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Identity == nil {
		dir := cfg.IdentityDir
		if dir == "" {
			dir = defaultIdentityDir()
		}
		store, err := NewFileIdentityStore(dir)
		if err != nil {
			return nil, err
		}
		cfg.Identity = store
	}
	if cfg.ContextProvider == nil {
		cfg.ContextProvider = NewCachedContextProvider(NewHostCollector(cfg.App))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	queue := newEventQueue(cfg.MaxQueueEvents)
	disp := newDispatcher(cfg, queue, transport.NewClient(httpClient, "pulse-go/"+Version))

	c := &Client{
		cfg:       cfg,
		queue:     queue,
		disp:      disp,
		identity:  cfg.Identity,
		contexts:  cfg.ContextProvider,
		log:       cfg.StructuredLogger,
		metrics:   cfg.Metrics,
		accepting: abool.NewBool(true),
		closed:    abool.New(),
	}
	c.enricher = newEnricher(cfg, cfg.ingestChannelCapacity(), disp.Offer)

	go c.enricher.run()
	disp.Start()

	c.log.Info("pulse client started",
		"host", cfg.IngestionHost, "write_key", MaskWriteKey(cfg.WriteKey))
	return c, nil
}

// EventOption customizes one event at the call site.
type EventOption func(*BaseEvent)

// WithTimestamp supplies a client-side event time instead of the enrichment
// wall clock.
func WithTimestamp(t time.Time) EventOption {
	return func(e *BaseEvent) {
		e.Timestamp = t
	}
}

// WithProperty adds one property to the event.
func WithProperty(key string, value any) EventOption {
	return func(e *BaseEvent) {
		if e.Properties == nil {
			e.Properties = Properties{}
		}
		e.Properties[key] = value
	}
}

// WithTrait adds one trait to the event.
func WithTrait(key string, value any) EventOption {
	return func(e *BaseEvent) {
		if e.Traits == nil {
			e.Traits = Traits{}
		}
		e.Traits[key] = value
	}
}

// Track records a named action with optional properties.
func (c *Client) Track(event string, properties Properties, opts ...EventOption) {
	if event == "" {
		c.rejectEvent(EventTypeTrack, "track requires an event name")
		return
	}
	c.send(BaseEvent{Type: EventTypeTrack, Event: event, Properties: properties}, opts)
}

// Identify records traits about the current user.
func (c *Client) Identify(traits Traits, opts ...EventOption) {
	c.send(BaseEvent{Type: EventTypeIdentify, Traits: traits}, opts)
}

// Group associates the current user with a group and records group traits.
// The group ID is remembered for subsequent events when the identity store
// is mutable.
func (c *Client) Group(groupID string, traits Traits, opts ...EventOption) {
	if groupID == "" {
		c.rejectEvent(EventTypeGroup, "group requires a group id")
		return
	}
	if store, ok := c.identity.(MutableIdentityStore); ok {
		if err := store.SetGroupID(groupID); err != nil {
			c.log.Warn("failed to persist group id", "error", err)
		}
	}
	c.send(BaseEvent{Type: EventTypeGroup, Traits: traits}, opts)
}

// Screen records a mobile screen view.
func (c *Client) Screen(name string, properties Properties, opts ...EventOption) {
	c.send(BaseEvent{Type: EventTypeScreen, Event: name, Properties: properties}, opts)
}

// Page records a web page view.
func (c *Client) Page(name string, properties Properties, opts ...EventOption) {
	c.send(BaseEvent{Type: EventTypePage, Event: name, Properties: properties}, opts)
}

// Alias links the current identity to a new user ID. The user ID is
// remembered for subsequent events when the identity store is mutable.
func (c *Client) Alias(userID string, opts ...EventOption) {
	if userID == "" {
		c.rejectEvent(EventTypeAlias, "alias requires a user id")
		return
	}
	if store, ok := c.identity.(MutableIdentityStore); ok {
		if err := store.SetUserID(userID); err != nil {
			c.log.Warn("failed to persist user id", "error", err)
		}
	}
	c.send(BaseEvent{Type: EventTypeAlias}, opts)
}

// Offer is the raw non-blocking ingestion entry point for callers that build
// BaseEvents themselves. Invalid events are dropped with a logged warning.
func (c *Client) Offer(event BaseEvent) {
	if !event.Type.IsValid() {
		c.rejectEvent(event.Type, "unknown event type")
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accepting.IsNotSet() {
		c.rejectEvent(event.Type, "client is shutting down")
		return
	}
	c.enricher.offer(event)
}

func (c *Client) send(event BaseEvent, opts []EventOption) {
	for _, opt := range opts {
		opt(&event)
	}
	c.Offer(event)
}

func (c *Client) rejectEvent(t EventType, reason string) {
	c.metrics.IncrementCounter(dropMetric(DropInvalid), 1)
	c.log.Warn("dropping event: "+reason, "type", t)
}

// Flush runs one transmission pass, blocking until it completes. It no-ops
// when another pass is already in progress or the dispatcher is stopped.
// Events still in the ingest channel are not covered; use Shutdown for a
// full drain.
func (c *Client) Flush() {
	c.disp.Flush()
}

// Start (re)launches the background flush loop, including after a fatal
// configuration error halted it.
func (c *Client) Start() {
	c.disp.Start()
}

// Stop halts the background flush loop and any pending retry. Queued events
// are retained; Start resumes transmission.
func (c *Client) Stop() {
	c.disp.Stop()
}

// Pause suppresses periodic flushes without cancelling a pending retry or
// dropping queued events. Intended for host lifecycle hooks (app
// backgrounded).
func (c *Client) Pause() {
	c.disp.paused.Set()
}

// Resume re-enables periodic flushes after Pause.
func (c *Client) Resume() {
	c.disp.paused.UnSet()
}

// SetTracing toggles the "Trace: true" request header at runtime.
func (c *Client) SetTracing(enabled bool) {
	c.disp.SetTracing(enabled)
}

// SetUserID records the user ID for subsequent events. No-op when the
// configured identity store is immutable.
func (c *Client) SetUserID(id string) error {
	store, ok := c.identity.(MutableIdentityStore)
	if !ok {
		return nil
	}
	return store.SetUserID(id)
}

// SetGroupID records the group ID for subsequent events. No-op when the
// configured identity store is immutable.
func (c *Client) SetGroupID(id string) error {
	store, ok := c.identity.(MutableIdentityStore)
	if !ok {
		return nil
	}
	return store.SetGroupID(id)
}

// SetAdvertisingID records the advertising ID and invalidates the cached
// context snapshot so the next event carries it.
func (c *Client) SetAdvertisingID(id string) error {
	if store, ok := c.identity.(MutableIdentityStore); ok {
		if err := store.SetAdvertisingID(id); err != nil {
			return err
		}
	}
	if inv, ok := c.contexts.(contextInvalidator); ok {
		inv.Invalidate()
	}
	return nil
}

// DebugInfo is a point-in-time snapshot of pipeline state for diagnostics.
type DebugInfo struct {
	IsRunning           bool
	Paused              bool
	QueueSize           int
	MaxBatchSize        int
	PendingRetry        bool
	TracingEnabled      bool
	CircuitState        string
	ConsecutiveFailures int
	RemainingCooldown   time.Duration
}

// DebugInfo reports the current pipeline state.
func (c *Client) DebugInfo() DebugInfo {
	return DebugInfo{
		IsRunning:           c.disp.running.IsSet(),
		Paused:              c.disp.paused.IsSet(),
		QueueSize:           c.queue.Size(),
		MaxBatchSize:        int(c.disp.maxBatchSize.Load()),
		PendingRetry:        c.disp.pendingRetry(),
		TracingEnabled:      c.disp.tracing.IsSet(),
		CircuitState:        c.disp.circuit.State().String(),
		ConsecutiveFailures: c.disp.circuit.ConsecutiveFailures(),
		RemainingCooldown:   c.disp.circuit.RemainingCooldown(),
	}
}

// Shutdown drains and stops the client: intake closes, the enricher finishes
// the ingest channel, a final flush pass runs, and the background loops stop.
// The context bounds the enricher drain; queued events that cannot be sent in
// the final pass are dropped. The client is unusable afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.closed.SetToIf(false, true) {
		return nil
	}

	c.mu.Lock()
	c.accepting.UnSet()
	close(c.enricher.inbox)
	enr := c.enricher
	c.mu.Unlock()

	var drainErr error
	select {
	case <-enr.done:
	case <-ctx.Done():
		drainErr = fmt.Errorf("pulse: shutdown: enricher drain interrupted: %w", ctx.Err())
	}

	c.disp.Flush()
	c.disp.Stop()

	if remaining := c.queue.Size(); remaining > 0 {
		c.log.Warn("shutdown with undelivered events", "remaining", remaining)
	}
	c.log.Info("pulse client stopped")
	return drainErr
}

// Close shuts the client down with the configured shutdown timeout.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// Reset discards all pending work and identity: the dispatcher stops, events
// in the ingest channel and the queue are dropped, the identity store is
// wiped (when mutable), the context cache is invalidated, and the pipeline
// restarts with fresh state.
func (c *Client) Reset() error {
	if c.closed.IsSet() {
		return fmt.Errorf("pulse: reset after close")
	}

	c.mu.Lock()
	c.accepting.UnSet()
	close(c.enricher.inbox)
	enr := c.enricher
	c.mu.Unlock()

	c.disp.Stop()
	<-enr.done

	if dropped := c.queue.Clear(); dropped > 0 {
		c.metrics.IncrementCounter(dropMetric(DropReset), int64(dropped))
	}

	var resetErr error
	if store, ok := c.identity.(MutableIdentityStore); ok {
		resetErr = store.Reset()
	}
	if inv, ok := c.contexts.(contextInvalidator); ok {
		inv.Invalidate()
	}

	c.mu.Lock()
	c.enricher = newEnricher(c.cfg, c.cfg.ingestChannelCapacity(), c.disp.Offer)
	go c.enricher.run()
	c.accepting.Set()
	c.mu.Unlock()

	c.disp.Start()

	c.log.Info("pulse client reset")
	return resetErr
}
