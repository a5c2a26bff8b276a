package pulse

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pulsekit/pulse-go/pkg/id"
)

// enricher is the single consumer of the ingest channel. It attaches
// identity, context, a message ID, and the write key to each BaseEvent and
// hands the result to the dispatcher. Producers never pay enrichment cost:
// they do a non-blocking channel send and return.
type enricher struct {
	inbox    chan BaseEvent
	identity IdentityStore
	contexts ContextProvider
	ids      *id.Generator
	writeKey string
	now      func() time.Time

	// sink receives each enriched event; wired to dispatcher.Offer.
	sink func(*EnrichedEvent)

	log     StructuredLogger
	metrics Metrics
	onError func(error)

	// inboxFullWarned arms the warn-once guard while the channel stays
	// saturated. A successful send rearms it, so each saturation episode
	// logs a single warning rather than one per dropped event.
	inboxFullWarned atomic.Bool

	done chan struct{}
}

// newEnricher creates an enricher with an inbox of the given capacity.
// Call run in its own goroutine to start consuming.
func newEnricher(cfg *Config, capacity int, sink func(*EnrichedEvent)) *enricher {
	return &enricher{
		inbox:    make(chan BaseEvent, capacity),
		identity: cfg.Identity,
		contexts: cfg.ContextProvider,
		ids:      id.NewGenerator(),
		writeKey: cfg.WriteKey,
		now:      time.Now,
		sink:     sink,
		log:      cfg.StructuredLogger,
		metrics:  cfg.Metrics,
		onError:  cfg.ErrorHandler,
		done:     make(chan struct{}),
	}
}

// offer performs the producer-side non-blocking send. When the inbox is full
// the event is dropped; producers never block.
func (e *enricher) offer(event BaseEvent) {
	select {
	case e.inbox <- event:
		e.inboxFullWarned.Store(false)
	default:
		e.metrics.IncrementCounter(dropMetric(DropIngestFull), 1)
		if e.inboxFullWarned.CompareAndSwap(false, true) {
			e.log.Warn("ingest channel full, dropping events until it drains",
				"capacity", cap(e.inbox), "type", event.Type)
		}
	}
}

// run consumes the inbox until it is closed. Each enrichment failure drops
// that event and the loop continues; the pipeline never stalls on one bad
// event. Call exactly once.
func (e *enricher) run() {
	defer close(e.done)

	for event := range e.inbox {
		enriched, err := e.enrich(event)
		if err != nil {
			e.metrics.IncrementCounter(dropMetric(DropEnrichFailure), 1)
			e.log.Error("dropping event: enrichment failed",
				"type", event.Type, "event", event.Event, "error", err)
			if e.onError != nil {
				e.onError(fmt.Errorf("pulse: enriching %s event: %w", event.Type, err))
			}
			continue
		}
		e.sink(enriched)
	}
}

// enrich builds the EnrichedEvent for one BaseEvent.
func (e *enricher) enrich(event BaseEvent) (*EnrichedEvent, error) {
	anonymousID, err := e.identity.AnonymousID()
	if err != nil {
		return nil, fmt.Errorf("reading anonymous id: %w", err)
	}
	if anonymousID == "" {
		return nil, fmt.Errorf("identity store returned an empty anonymous id")
	}

	advertisingID := e.identity.AdvertisingID()
	ctx, err := e.contexts.Snapshot(advertisingID)
	if err != nil {
		return nil, fmt.Errorf("collecting context: %w", err)
	}

	messageID, err := e.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = e.now()
	}

	return &EnrichedEvent{
		Type:        event.Type,
		Event:       event.Event,
		Properties:  event.Properties,
		Traits:      event.Traits,
		AnonymousID: anonymousID,
		UserID:      e.identity.UserID(),
		GroupID:     e.identity.GroupID(),
		Timestamp:   formatTimestamp(timestamp),
		Context:     ctx,
		MessageID:   messageID,
		WriteKey:    e.writeKey,
	}, nil
}

// dropMetric names the drop counter for a reason, e.g.
// "pulse.events.dropped.ingest_full".
func dropMetric(reason DropReason) string {
	return metricEventsDropped + "." + string(reason)
}
