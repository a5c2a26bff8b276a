// Package pulsetest provides test fixtures for the pulse SDK: an in-process
// ingestion endpoint that records batches and plays back scripted responses.
package pulsetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	pulse "github.com/pulsekit/pulse-go"
)

// RecordedRequest is one captured ingestion POST.
type RecordedRequest struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	TraceHeader string
	ReceivedAt  time.Time
}

// Batch decodes the recorded body's batch array. Returns nil when the body
// is not a batch payload.
func (r *RecordedRequest) Batch() []pulse.EnrichedEvent {
	var payload struct {
		Batch []pulse.EnrichedEvent `json:"batch"`
	}
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return nil
	}
	return payload.Batch
}

// ScriptedResponse is one step of a response script.
type ScriptedResponse struct {
	Status  int
	Headers map[string]string
	Body    any
}

// MockServer is an in-process ingestion endpoint. Responses come from the
// script queue first; when the script is exhausted the server answers with
// the default response (200 unless overridden).
type MockServer struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []*RecordedRequest
	script    []ScriptedResponse
	fallback  ScriptedResponse
	arrivedCh chan struct{}
}

// NewMockServer starts a server routing POST /v1/batch (and any custom path
// via PathPrefix) to the recorder. Callers must Close it.
func NewMockServer() *MockServer {
	ms := &MockServer{
		fallback:  ScriptedResponse{Status: http.StatusOK, Body: map[string]bool{"success": true}},
		arrivedCh: make(chan struct{}, 128),
	}

	r := mux.NewRouter()
	r.PathPrefix("/").Methods(http.MethodPost).HandlerFunc(ms.handle)
	ms.Server = httptest.NewServer(r)
	return ms
}

func (ms *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests = append(ms.requests, &RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		TraceHeader: r.Header.Get("Trace"),
		ReceivedAt:  time.Now(),
	})

	resp := ms.fallback
	if len(ms.script) > 0 {
		resp = ms.script[0]
		ms.script = ms.script[1:]
	}
	ms.mu.Unlock()

	select {
	case ms.arrivedCh <- struct{}{}:
	default:
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if resp.Body != nil {
		json.NewEncoder(w).Encode(resp.Body)
	}
}

// Script enqueues responses to be played back in order, one per request.
func (ms *MockServer) Script(responses ...ScriptedResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.script = append(ms.script, responses...)
}

// RespondWith sets the fallback response used once the script is exhausted.
func (ms *MockServer) RespondWith(status int, body any) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.fallback = ScriptedResponse{Status: status, Body: body}
}

// RespondWithError scripts one error response.
func RespondWithError(status int) ScriptedResponse {
	return ScriptedResponse{Status: status, Body: map[string]string{"error": http.StatusText(status)}}
}

// RespondWithRetryAfter scripts one response carrying a Retry-After header.
func RespondWithRetryAfter(status, seconds int) ScriptedResponse {
	return ScriptedResponse{
		Status:  status,
		Headers: map[string]string{"Retry-After": strconv.Itoa(seconds)},
		Body:    map[string]string{"error": http.StatusText(status)},
	}
}

// RespondWithSuccess scripts one 200 response.
func RespondWithSuccess() ScriptedResponse {
	return ScriptedResponse{Status: http.StatusOK, Body: map[string]bool{"success": true}}
}

// Requests returns a copy of all recorded requests.
func (ms *MockServer) Requests() []*RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]*RecordedRequest{}, ms.requests...)
}

// RequestCount returns the number of recorded requests.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.requests)
}

// RequestAt returns the request at index, or nil when out of range.
func (ms *MockServer) RequestAt(index int) *RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if index < 0 || index >= len(ms.requests) {
		return nil
	}
	return ms.requests[index]
}

// LastRequest returns the most recent request, or nil when none arrived.
func (ms *MockServer) LastRequest() *RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.requests) == 0 {
		return nil
	}
	return ms.requests[len(ms.requests)-1]
}

// AllEvents returns every event across all recorded batches in arrival order.
func (ms *MockServer) AllEvents() []pulse.EnrichedEvent {
	var events []pulse.EnrichedEvent
	for _, req := range ms.Requests() {
		events = append(events, req.Batch()...)
	}
	return events
}

// WaitForRequests blocks until at least n requests have arrived or the
// timeout expires. Returns whether the count was reached.
func (ms *MockServer) WaitForRequests(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if ms.RequestCount() >= n {
			return true
		}
		select {
		case <-ms.arrivedCh:
		case <-deadline:
			return ms.RequestCount() >= n
		}
	}
}

// WaitForEvents blocks until at least n events have arrived across all
// batches or the timeout expires. Returns whether the count was reached.
func (ms *MockServer) WaitForEvents(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(ms.AllEvents()) >= n {
			return true
		}
		select {
		case <-ms.arrivedCh:
		case <-deadline:
			return len(ms.AllEvents()) >= n
		}
	}
}

// Reset clears recorded requests and any unplayed script.
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.requests = nil
	ms.script = nil
}
