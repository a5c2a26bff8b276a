package pulse

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// testConfig returns a config wired with in-memory seams and a flush loop
// that never ticks on its own, so tests drive every flush explicitly.
func testConfig(host string) *Config {
	cfg := &Config{
		WriteKey:            "wk_test_8f3a91c2",
		IngestionHost:       host,
		FlushInterval:       time.Hour,
		AutoFlushThreshold:  100000,
		MaxQueueEvents:      1000,
		InitialMaxBatchSize: 10,
		HTTPTimeout:         2 * time.Second,
		Identity:            NewStaticIdentityStore("anon-test"),
		ContextProvider:     NewStaticContextProvider(nil),
	}
	cfg.applyDefaults()
	return cfg
}

// captureLogger records log lines for assertions.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg+formatArgs(args))
}

func (l *captureLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// count returns how many recorded lines contain substr.
func (l *captureLogger) count(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

// countingMetrics records counter increments by name.
type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counters: map[string]int64{}}
}

func (m *countingMetrics) IncrementCounter(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *countingMetrics) RecordDuration(string, time.Duration) {}
func (m *countingMetrics) SetGauge(string, float64)             {}

func (m *countingMetrics) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// waitUntil polls cond every millisecond until it holds or the timeout
// expires, returning whether it held.
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

// baseEvents builds n track events named "e0".."e{n-1}".
func baseEvents(n int) []BaseEvent {
	events := make([]BaseEvent, n)
	for i := range events {
		events[i] = BaseEvent{
			Type:  EventTypeTrack,
			Event: fmt.Sprintf("e%d", i),
		}
	}
	return events
}
