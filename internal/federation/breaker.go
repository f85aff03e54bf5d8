package federation

import (
	"sync"
	"sync/atomic"
	"time"
)

// Circuit breaker states. Transitions go closed → open on repeated failure,
// open → half-open after the cooldown, half-open → closed on a successful
// probe or back to open on a failed one.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

// BreakerConfig tunes the per-adapter circuit breaker
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int
	// Window bounds how far apart failures may be and still count as
	// consecutive.
	Window time.Duration
	// Cooldown is how long an open circuit rejects calls before allowing
	// a half-open probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig matches the documented federation defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           1 * time.Minute,
		Cooldown:         30 * time.Second,
	}
}

type breaker struct {
	state atomic.Int32

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	openedAt    time.Time
}

// transition is the only way state changes: an atomic compare-and-swap so
// two investigations hitting the same adapter cannot both win a
// transition.
func (b *breaker) transition(from, to int32) bool {
	return b.state.CompareAndSwap(from, to)
}

// BreakerStore holds circuit state per adapter. It is the single piece of
// cross-investigation shared mutable state in the pipeline and is injected
// into every executor, never reached through a global.
type BreakerStore struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*breaker

	now func() time.Time // injectable clock for tests
}

// NewBreakerStore creates a breaker store with the given config
func NewBreakerStore(cfg BreakerConfig) *BreakerStore {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultBreakerConfig().Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &BreakerStore{
		cfg:      cfg,
		breakers: make(map[string]*breaker),
		now:      time.Now,
	}
}

func (s *BreakerStore) get(adapter string) *breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[adapter]
	if !ok {
		b = &breaker{}
		s.breakers[adapter] = b
	}
	return b
}

// Allow reports whether a call to the adapter may proceed. An open circuit
// past its cooldown admits exactly one probe by moving to half-open.
func (s *BreakerStore) Allow(adapter string) bool {
	b := s.get(adapter)
	switch b.state.Load() {
	case StateClosed:
		return true
	case StateHalfOpen:
		// A probe is already in flight; reject concurrent calls until
		// it resolves.
		return false
	default: // StateOpen
		b.mu.Lock()
		openedAt := b.openedAt
		b.mu.Unlock()
		if s.now().Sub(openedAt) < s.cfg.Cooldown {
			return false
		}
		// Only the winner of the CAS gets the probe slot
		return b.transition(StateOpen, StateHalfOpen)
	}
}

// RecordSuccess closes the circuit and resets the failure count
func (s *BreakerStore) RecordSuccess(adapter string) {
	b := s.get(adapter)
	b.transition(StateHalfOpen, StateClosed)
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// RecordFailure counts a failure; at the threshold the circuit opens. A
// failed half-open probe reopens immediately.
func (s *BreakerStore) RecordFailure(adapter string) {
	b := s.get(adapter)
	now := s.now()

	if b.transition(StateHalfOpen, StateOpen) {
		b.mu.Lock()
		b.openedAt = now
		b.lastFailure = now
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	if now.Sub(b.lastFailure) > s.cfg.Window {
		b.failures = 0
	}
	b.failures++
	b.lastFailure = now
	open := b.failures >= s.cfg.FailureThreshold
	if open {
		b.openedAt = now
	}
	b.mu.Unlock()

	if open {
		b.transition(StateClosed, StateOpen)
	}
}

// State returns the current circuit state for an adapter
func (s *BreakerStore) State(adapter string) int32 {
	return s.get(adapter).state.Load()
}
