// Package transport provides the HTTP layer of the event pipeline: a
// POST-JSON client, the circuit breaker that gates it, and the Retry-After
// header parser. The dispatcher owns all retry policy; nothing in this
// package retries on its own.
package transport

import (
	"math/rand"
	"sync"
	"time"
)

// Circuit breaker states.
const (
	// CircuitClosed allows requests to pass through normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen defers all requests until the cooldown deadline passes.
	CircuitOpen
	// CircuitHalfOpen allows a limited number of probe requests.
	CircuitHalfOpen
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default circuit breaker parameters.
const (
	DefaultFailureThreshold      = 3
	DefaultBaseCooldown          = 10 * time.Second
	DefaultMaxCooldown           = 120 * time.Second
	DefaultJitterRatio           = 0.2
	DefaultHalfOpenMaxConcurrent = 1

	// halfOpenProbeDelay is returned while the half-open probe slot is
	// taken; callers should re-ask shortly rather than back off fully.
	halfOpenProbeDelay = 200 * time.Millisecond
)

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive retryable failures in
	// the closed state before the circuit opens. Default: 3.
	FailureThreshold int

	// BaseCooldown is the open-state cooldown after the first trip. Each
	// further trip doubles it. Default: 10 seconds.
	BaseCooldown time.Duration

	// MaxCooldown caps the doubled cooldown. Default: 120 seconds.
	MaxCooldown time.Duration

	// JitterRatio spreads the cooldown uniformly by ±ratio to avoid
	// synchronized retries across clients. Zero disables jitter.
	JitterRatio float64

	// HalfOpenMaxConcurrent is the number of probe requests admitted in
	// the half-open state. Default: 1.
	HalfOpenMaxConcurrent int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to CircuitState)

	// Clock overrides the time source. Defaults to time.Now.
	Clock func() time.Time

	// Rand overrides the jitter source with a uniform [0,1) generator.
	// Defaults to math/rand.
	Rand func() float64
}

// DefaultCircuitBreakerConfig returns the default parameters.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:      DefaultFailureThreshold,
		BaseCooldown:          DefaultBaseCooldown,
		MaxCooldown:           DefaultMaxCooldown,
		JitterRatio:           DefaultJitterRatio,
		HalfOpenMaxConcurrent: DefaultHalfOpenMaxConcurrent,
	}
}

// CircuitBreaker protects the ingestion endpoint from retry storms. Unlike a
// gate that merely admits or rejects, BeforeRequest answers "how long should
// the caller wait": zero means proceed now, anything else is the remaining
// cooldown for the caller to schedule around.
//
// Consecutive retryable failures trip the breaker; each trip doubles the
// cooldown (capped and jittered). A success closes it, a failed probe reopens
// it at the next backoff step. Responses that retrying cannot fix are
// reported through OnNonRetryable: they prove the endpoint is reachable, so
// they reset the failure count without touching the state.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu                  sync.RWMutex
	state               CircuitState
	consecutiveFailures int
	openCount           int
	openUntil           time.Time
	halfOpenInFlight    int
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
// Zero-valued required fields fall back to the defaults; a zero JitterRatio
// stays zero.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.BaseCooldown <= 0 {
		config.BaseCooldown = DefaultBaseCooldown
	}
	if config.MaxCooldown <= 0 {
		config.MaxCooldown = DefaultMaxCooldown
	}
	if config.JitterRatio < 0 {
		config.JitterRatio = 0
	}
	if config.HalfOpenMaxConcurrent <= 0 {
		config.HalfOpenMaxConcurrent = DefaultHalfOpenMaxConcurrent
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Rand == nil {
		config.Rand = rand.Float64
	}

	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
	}
}

// BeforeRequest reports how long the caller should wait before issuing a
// request. Zero means proceed immediately. Crossing the cooldown deadline
// moves the breaker from open to half-open; in half-open, requests beyond
// the probe limit are deferred briefly instead of for the full cooldown.
func (b *CircuitBreaker) BeforeRequest() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return 0

	case CircuitOpen:
		now := b.config.Clock()
		if now.Before(b.openUntil) {
			return b.openUntil.Sub(now)
		}
		b.setState(CircuitHalfOpen)
		b.halfOpenInFlight = 0
		return 0

	case CircuitHalfOpen:
		if b.halfOpenInFlight >= b.config.HalfOpenMaxConcurrent {
			return halfOpenProbeDelay
		}
		b.halfOpenInFlight++
		return 0
	}

	return 0
}

// OnSuccess records a successful request. Any non-closed state closes.
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state != CircuitClosed {
		b.setState(CircuitClosed)
		b.halfOpenInFlight = 0
	}
}

// OnFailure records a retryable failure: a transport error, a 5xx, a 408, or
// a 429. Reaching the threshold in the closed state trips the breaker; any
// failure in half-open trips it back with the next backoff step.
func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case CircuitClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.trip()
		}
	case CircuitHalfOpen:
		b.trip()
	}
}

// OnNonRetryable records a response that retrying cannot fix (4xx other than
// 408/429). The endpoint answered, so the failure streak resets, but the
// state is left alone. A half-open probe that ends this way releases its
// slot; the next BeforeRequest may probe again.
func (b *CircuitBreaker) OnNonRetryable() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == CircuitHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

// trip opens the circuit and arms the cooldown deadline:
// min(MaxCooldown, BaseCooldown · 2^(openCount-1)), spread by ±JitterRatio.
// Must be called with the lock held.
func (b *CircuitBreaker) trip() {
	b.openCount++

	cooldown := b.config.MaxCooldown
	shift := uint(b.openCount - 1)
	// Guard the shift: past 32 doublings the cap has long since won.
	if shift < 32 {
		d := b.config.BaseCooldown << shift
		if d > 0 && d < cooldown {
			cooldown = d
		}
	}

	if b.config.JitterRatio > 0 {
		jitter := time.Duration(float64(cooldown) * b.config.JitterRatio)
		cooldown += time.Duration((b.config.Rand()*2 - 1) * float64(jitter))
		if cooldown < 0 {
			cooldown = 0
		}
	}

	b.openUntil = b.config.Clock().Add(cooldown)
	b.consecutiveFailures = 0
	b.halfOpenInFlight = 0
	b.setState(CircuitOpen)
}

// setState changes the state and notifies OnStateChange.
// Must be called with the lock held.
func (b *CircuitBreaker) setState(newState CircuitState) {
	if b.state == newState {
		return
	}
	oldState := b.state
	b.state = newState

	if b.config.OnStateChange != nil {
		// Run the callback outside the lock to prevent deadlocks.
		go b.config.OnStateChange(oldState, newState)
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// reports half-open, matching what the next BeforeRequest will do.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == CircuitOpen && !b.config.Clock().Before(b.openUntil) {
		return CircuitHalfOpen
	}
	return b.state
}

// RemainingCooldown returns how much of the open-state cooldown is left.
// Zero when the breaker is not open or the deadline has passed.
func (b *CircuitBreaker) RemainingCooldown() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state != CircuitOpen {
		return 0
	}
	remaining := b.openUntil.Sub(b.config.Clock())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ConsecutiveFailures returns the current failure streak.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consecutiveFailures
}

// OpenCount returns how many times the breaker has tripped. It never
// decreases over the breaker's lifetime.
func (b *CircuitBreaker) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.openCount
}

// CircuitBreakerOption configures a circuit breaker.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// WithFailureThreshold sets the consecutive-failure trip threshold.
func WithFailureThreshold(n int) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.FailureThreshold = n
	}
}

// WithBaseCooldown sets the first-trip cooldown.
func WithBaseCooldown(d time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.BaseCooldown = d
	}
}

// WithMaxCooldown caps the doubled cooldown.
func WithMaxCooldown(d time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxCooldown = d
	}
}

// WithJitterRatio sets the ± cooldown spread. Zero disables jitter.
func WithJitterRatio(ratio float64) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.JitterRatio = ratio
	}
}

// WithHalfOpenMaxConcurrent sets the probe limit in the half-open state.
func WithHalfOpenMaxConcurrent(n int) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.HalfOpenMaxConcurrent = n
	}
}

// WithStateChangeCallback sets the callback for state changes.
func WithStateChangeCallback(fn func(from, to CircuitState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Clock = clock
	}
}

// WithRand overrides the jitter source (tests).
func WithRand(fn func() float64) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Rand = fn
	}
}

// NewCircuitBreakerWithOptions creates a circuit breaker from the defaults
// plus the given options.
func NewCircuitBreakerWithOptions(opts ...CircuitBreakerOption) *CircuitBreaker {
	config := DefaultCircuitBreakerConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewCircuitBreaker(config)
}
