package pulse_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pulse "github.com/pulsekit/pulse-go"
	"github.com/pulsekit/pulse-go/pulsetest"
)

// newTestClient builds a client against the mock server with fast flushing
// and in-memory seams.
func newTestClient(t *testing.T, server *pulsetest.MockServer, opts ...pulse.ConfigOption) *pulse.Client {
	t.Helper()
	base := []pulse.ConfigOption{
		pulse.WithFlushInterval(25 * time.Millisecond),
		pulse.WithIdentityStore(pulse.NewStaticIdentityStore("anon-test")),
		pulse.WithContextProvider(pulse.NewStaticContextProvider(nil)),
	}
	client, err := pulse.New("wk_test_8f3a91c2", server.URL, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientDeliversEventsEndToEnd(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	client.Track("Order Completed", pulse.Properties{"total": 42.5})
	client.Identify(pulse.Traits{"plan": "pro"})
	client.Page("Pricing", nil)

	require.True(t, server.WaitForEvents(3, 5*time.Second))

	events := server.AllEvents()
	require.Len(t, events, 3)
	assert.Equal(t, pulse.EventTypeTrack, events[0].Type)
	assert.Equal(t, "Order Completed", events[0].Event)
	assert.Equal(t, pulse.EventTypeIdentify, events[1].Type)
	assert.Equal(t, pulse.EventTypePage, events[2].Type)

	for _, e := range events {
		assert.Equal(t, "anon-test", e.AnonymousID)
		assert.Equal(t, "wk_test_8f3a91c2", e.WriteKey)
		assert.NotEmpty(t, e.MessageID)
		assert.NotEmpty(t, e.SentAt)
		require.NotNil(t, e.Context)
		assert.Equal(t, "pulse-go", e.Context.Library.Name)
	}

	req := server.RequestAt(0)
	assert.Equal(t, "/v1/batch", req.Path)
	assert.Equal(t, "application/json", req.ContentType)
}

func TestClientGroupAndAliasRecordIdentity(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	store := pulse.NewStaticIdentityStore("anon-test")
	client := newTestClient(t, server, pulse.WithIdentityStore(store))

	client.Group("acme", pulse.Traits{"tier": "enterprise"})
	client.Alias("user-99")
	client.Track("After Alias", nil)

	require.True(t, server.WaitForEvents(3, 5*time.Second))
	assert.Equal(t, "acme", store.GroupID())
	assert.Equal(t, "user-99", store.UserID())

	events := server.AllEvents()
	last := events[len(events)-1]
	assert.Equal(t, "user-99", last.UserID)
	assert.Equal(t, "acme", last.GroupID)
}

func TestClientRejectsInvalidEvents(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	client.Track("", nil)
	client.Group("", nil)
	client.Alias("")
	client.Offer(pulse.BaseEvent{Type: "bogus"})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, len(server.AllEvents()))
}

func TestClientEventOptions(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server)

	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	client.Track("Backfilled", nil,
		pulse.WithTimestamp(ts),
		pulse.WithProperty("source", "import"),
	)

	require.True(t, server.WaitForEvents(1, 5*time.Second))
	got := server.AllEvents()[0]
	assert.Equal(t, "2026-02-01T12:00:00.000Z", got.Timestamp)
	assert.Equal(t, "import", got.Properties["source"])
}

func TestClientAutoFlushThreshold(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server,
		pulse.WithFlushInterval(time.Hour),
		pulse.WithAutoFlushThreshold(5),
	)

	// Crossing the threshold flushes without waiting for the interval.
	for i := 0; i < 5; i++ {
		client.Track("burst", nil)
	}
	require.True(t, server.WaitForEvents(5, 5*time.Second))
}

func TestClientTracingToggle(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server, pulse.WithTracing(true))

	client.Track("traced", nil)
	require.True(t, server.WaitForRequests(1, 5*time.Second))
	assert.Equal(t, "true", server.RequestAt(0).TraceHeader)

	client.SetTracing(false)
	client.Track("untraced", nil)
	require.True(t, server.WaitForRequests(2, 5*time.Second))
	assert.Empty(t, server.LastRequest().TraceHeader)
}

func TestClientRetriesAfterServerError(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	server.Script(pulsetest.RespondWithError(500))

	client := newTestClient(t, server)
	client.Track("flaky", nil)

	// The failed batch is requeued and retried with the same event.
	require.True(t, server.WaitForRequests(2, 10*time.Second))
	events := server.RequestAt(1).Batch()
	require.Len(t, events, 1)
	assert.Equal(t, "flaky", events[0].Event)
	assert.Equal(t, server.RequestAt(0).Batch()[0].MessageID, events[0].MessageID)
}

func TestClientHonoursRetryAfterHint(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	server.Script(pulsetest.RespondWithRetryAfter(429, 1), pulsetest.RespondWithSuccess())

	client := newTestClient(t, server)
	client.Track("throttled", nil)

	require.True(t, server.WaitForRequests(2, 10*time.Second))
	gap := server.RequestAt(1).ReceivedAt.Sub(server.RequestAt(0).ReceivedAt)
	assert.GreaterOrEqual(t, gap, 900*time.Millisecond,
		"retry must wait at least the Retry-After hint")
}

func TestClientFatalConfigErrorFiresCallback(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	server.RespondWith(401, map[string]string{"error": "bad write key"})

	var mu sync.Mutex
	var codes []int
	client := newTestClient(t, server, pulse.WithOnFatalConfigError(func(status int) {
		mu.Lock()
		defer mu.Unlock()
		codes = append(codes, status)
	}))

	client.Track("doomed", nil)
	require.True(t, waitUntil(5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(codes) > 0
	}))
	require.True(t, waitUntil(time.Second, func() bool { return !client.DebugInfo().IsRunning }))

	mu.Lock()
	assert.Equal(t, []int{401}, codes)
	mu.Unlock()
	assert.Equal(t, 0, client.DebugInfo().QueueSize)

	// Events are still accepted but nothing is transmitted until Start.
	before := server.RequestCount()
	client.Track("parked", nil)
	client.Flush()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, server.RequestCount())
}

func TestClientDebugInfo(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server,
		pulse.WithFlushInterval(time.Hour),
		pulse.WithMaxBatchSize(25),
		pulse.WithTracing(true),
	)

	info := client.DebugInfo()
	assert.True(t, info.IsRunning)
	assert.False(t, info.Paused)
	assert.Equal(t, 25, info.MaxBatchSize)
	assert.True(t, info.TracingEnabled)
	assert.Equal(t, "closed", info.CircuitState)
	assert.Zero(t, info.RemainingCooldown)
	assert.False(t, info.PendingRetry)

	client.Pause()
	assert.True(t, client.DebugInfo().Paused)
	client.Resume()
	assert.False(t, client.DebugInfo().Paused)
}

func TestClientShutdownDrainsPendingEvents(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server, pulse.WithFlushInterval(time.Hour))

	const n = 30
	for i := 0; i < n; i++ {
		client.Track("pending", nil)
	}
	require.NoError(t, client.Close())

	// Close drains the ingest channel and runs a final flush, so every
	// accepted event reaches the endpoint.
	assert.Len(t, server.AllEvents(), n)

	// Events after close are rejected quietly.
	client.Track("late", nil)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, server.AllEvents(), n)
}

func TestClientResetDropsPendingAndIdentity(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	store := pulse.NewStaticIdentityStore("anon-before")
	require.NoError(t, store.SetUserID("user-1"))
	client := newTestClient(t, server,
		pulse.WithFlushInterval(time.Hour),
		pulse.WithIdentityStore(store),
	)

	client.Track("discarded", nil)
	require.NoError(t, client.Reset())

	assert.Empty(t, store.UserID())
	assert.Equal(t, 0, client.DebugInfo().QueueSize)

	// The pipeline is live again after reset, with a fresh anonymous ID.
	client.Track("after reset", nil)
	require.True(t, server.WaitForEvents(1, 5*time.Second))
	got := server.AllEvents()[0]
	assert.Equal(t, "after reset", got.Event)
	assert.NotEmpty(t, got.AnonymousID)
	assert.NotEqual(t, "anon-before", got.AnonymousID)
}

func TestClientConcurrentProducers(t *testing.T) {
	server := pulsetest.NewMockServer()
	defer server.Close()
	client := newTestClient(t, server, pulse.WithMaxQueueEvents(5000))

	const producers = 8
	const perProducer = 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				client.Track("concurrent", nil)
			}
		}()
	}
	wg.Wait()

	require.True(t, server.WaitForEvents(producers*perProducer, 10*time.Second))

	// Message IDs stay unique across concurrent producers.
	seen := map[string]bool{}
	for _, e := range server.AllEvents() {
		assert.False(t, seen[e.MessageID], "duplicate message id %s", e.MessageID)
		seen[e.MessageID] = true
	}
}

// waitUntil polls cond until it holds or the timeout expires.
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
