// Package id generates the message identifiers stamped on enriched events.
package id

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Mode controls how message-ID generation degrades when crypto/rand fails.
type Mode int

const (
	// ModeFallback substitutes a counter-based suffix when crypto/rand
	// fails. This is the default.
	ModeFallback Mode = iota

	// ModeStrict surfaces the error instead. Use when downstream
	// deduplication depends on UUID-grade uniqueness.
	ModeStrict
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeFallback:
		return "fallback"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

var (
	// fallbackCounter provides uniqueness when combined with the timestamp
	// and process ID. Incremented atomically.
	fallbackCounter atomic.Uint64

	// processID is cached at startup for fallback IDs.
	processID = os.Getpid()
)

// Generator produces message IDs of the form {epoch-ms}-{uuid-v4}. The
// epoch-millisecond prefix keeps IDs roughly sortable by production time; the
// UUID makes them probabilistically unique across processes.
type Generator struct {
	mode Mode
	now  func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithMode sets the degradation mode.
func WithMode(mode Mode) Option {
	return func(g *Generator) {
		g.mode = mode
	}
}

// WithClock overrides the wall clock used for the epoch prefix.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a Generator. The default mode is ModeFallback.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		mode: ModeFallback,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewID returns the next message ID. It returns an error only in ModeStrict
// when crypto/rand fails.
func (g *Generator) NewID() (string, error) {
	ms := g.now().UnixMilli()

	u, err := uuid.NewRandom()
	if err != nil {
		if g.mode == ModeStrict {
			return "", fmt.Errorf("id: generating uuid: %w", err)
		}
		return fmt.Sprintf("%d-fb-%x-%d", ms, fallbackCounter.Add(1), processID), nil
	}
	return fmt.Sprintf("%d-%s", ms, u.String()), nil
}

// MustNewID returns the next message ID or panics. Only ModeStrict can panic.
func (g *Generator) MustNewID() string {
	id, err := g.NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// IsFallbackID reports whether the ID degraded to the counter form.
func IsFallbackID(id string) bool {
	return strings.Contains(id, "-fb-")
}

// defaultGenerator backs the package-level helpers.
var defaultGenerator = NewGenerator()

// NewID returns the next message ID from the package-level generator.
func NewID() (string, error) {
	return defaultGenerator.NewID()
}
