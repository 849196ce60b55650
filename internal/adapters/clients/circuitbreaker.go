package clients

import (
	"context"
	"sync"
	"time"

	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

// State is a circuit breaker state.
type State int

// Breaker states. Closed passes traffic, Open rejects it and HalfOpen lets a
// bounded number of probes through.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Name identifies the protected downstream in health output.
	Name string

	// MaxFailures consecutive failures open the circuit.
	MaxFailures int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// HalfOpenLimit is both the number of concurrent probes and the number
	// of probe successes that close the circuit again.
	HalfOpenLimit int
}

// CircuitBreaker guards calls to the toggle server. After MaxFailures
// consecutive failures it opens and rejects calls for Timeout, then admits
// up to HalfOpenLimit probes: HalfOpenLimit successes close it, any failure
// reopens it.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.RWMutex
	state    State
	failures int
	probes   int
	passed   int
	openedAt time.Time
	onChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.MaxFailures = max(cfg.MaxFailures, 1)
	cfg.HalfOpenLimit = max(cfg.HalfOpenLimit, 1)

	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn to run after every transition. fn runs without
// the breaker lock held.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

// Allow reports whether a call may proceed. A caller that got true must
// report the outcome with RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()

	allowed := false
	from := cb.state

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
			cb.setState(StateHalfOpen)
			cb.probes = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.probes < cb.cfg.HalfOpenLimit {
			cb.probes++
			allowed = true
		}
	}

	cb.unlockAndNotify(from)

	return allowed
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.probes--
		cb.passed++

		if cb.passed >= cb.cfg.HalfOpenLimit {
			cb.setState(StateClosed)
		}
	}

	cb.unlockAndNotify(from)
}

// RecordFailure reports a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	case StateOpen:
		cb.openedAt = cb.now()
	}

	cb.unlockAndNotify(from)
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.state
}

// Name implements ports.HealthChecker.
func (cb *CircuitBreaker) Name() string {
	return "circuit:" + cb.cfg.Name
}

// Check implements ports.HealthChecker. An open circuit is degraded: toggle
// reads keep serving the last snapshot while the server is cut off.
func (cb *CircuitBreaker) Check(_ context.Context) error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.state == StateOpen {
		return ports.Degraded(cb.cfg.Name + " circuit open since " + cb.openedAt.UTC().Format(time.RFC3339))
	}

	return nil
}

func (cb *CircuitBreaker) open() {
	cb.setState(StateOpen)
	cb.openedAt = cb.now()
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) {
	cb.state = to
	cb.failures = 0
	cb.probes = 0
	cb.passed = 0
}

func (cb *CircuitBreaker) unlockAndNotify(from State) {
	to, fn := cb.state, cb.onChange
	cb.mu.Unlock()

	if fn != nil && from != to {
		fn(from, to)
	}
}
