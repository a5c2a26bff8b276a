// Package pulse provides a Go client for the Pulse analytics ingestion API.
//
// The client accepts fire-and-forget event calls, enriches them with identity
// and environmental context in the background, buffers them in a bounded
// in-memory queue, and transmits them in batches to the ingestion endpoint.
// Transmission is resilient: transient server failures are retried with a
// circuit breaker and server-supplied Retry-After hints, oversized payloads
// shrink the batch size, and misconfigured credentials halt the pipeline
// instead of retrying forever.
//
// # Quick Start
//
// Create a client and send events:
//
//	client, err := pulse.New(
//	    os.Getenv("PULSE_WRITE_KEY"),
//	    "https://ingest.example.com",
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Track("Order Completed", map[string]any{
//	    "orderId": "ord_123",
//	    "total":   42.5,
//	})
//
//	client.Identify(map[string]any{"plan": "enterprise"})
//
// # Configuration
//
// The client can be configured with options:
//
//	client, err := pulse.New(writeKey, host,
//	    pulse.WithFlushInterval(5*time.Second),
//	    pulse.WithMaxQueueEvents(5000),
//	    pulse.WithStructuredLogger(pulse.NewLogrusAdapter(logrus.StandardLogger())),
//	)
//
// # Delivery Guarantees
//
// Delivery is at-most-once and best-effort. Events are dropped when the ingest
// channel or the event queue overflows (oldest first), when the server rejects
// them as a client error, or when the process exits before a flush. Events
// admitted without drops are delivered in admission order.
//
// # Thread Safety
//
// The Client is safe for concurrent use. Event methods never block the caller
// and never return delivery errors; failures surface through the configured
// logger, the error handler, and the OnFatalConfigError callback.
package pulse

// Version is the SDK version reported in the User-Agent header and in the
// context.library.version field of every enriched event.
const Version = "1.2.0"
