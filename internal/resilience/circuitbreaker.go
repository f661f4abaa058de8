// Package resilience stops questions from piling up on a model provider that
// keeps failing.
//
// [CircuitBreaker] counts consecutive upstream failures. Once it opens, calls
// fail fast with [ErrCircuitOpen] until a cool-down passes, after which a few
// probe calls decide whether the provider is back. [GuardedLLM] puts one in
// front of an [llm.Provider]. Nothing here retries: each question reaches the
// model at most once.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen rejects a call without contacting the provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the mode of a [CircuitBreaker].
type State int

const (
	StateClosed   State = iota // calls pass, failures are counted
	StateOpen                  // calls are rejected until ResetTimeout passes
	StateHalfOpen              // up to HalfOpenMax probes pass
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels logs, health checks and metrics, e.g. "llm/openai".
	Name string

	// MaxFailures opens the breaker after this many consecutive failures. 5.
	MaxFailures int

	// ResetTimeout is the cool-down before probing. 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probes admitted, and the number of
	// successes needed to close again. 3.
	HalfOpenMax int

	// IsFailure reports whether err counts against the provider. By default
	// every error except [context.Canceled] does: a client hanging up says
	// nothing about the model.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Now replaces [time.Now] in tests.
	Now func() time.Time
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // last transition to open
	probes   int       // admitted while half-open
	passed   int       // successful probes
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State returns the current mode. An open breaker whose cool-down has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen]. fn's
// error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.transition(StateClosed)
	cb.mu.Unlock()
	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if !cb.cooledDown() {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.probes++
		probe = true
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
	return probe, nil
}

// settle books the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	from, to := cb.state, cb.state
	switch {
	case err != nil && cb.cfg.IsFailure(err):
		cb.failures++
		if probe || cb.failures >= cb.cfg.MaxFailures {
			to = StateOpen
		}
	case err != nil:
		// Inconclusive. A probe slot is handed back.
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}
	case probe && cb.state == StateHalfOpen:
		cb.passed++
		if cb.passed >= cb.cfg.HalfOpenMax {
			to = StateClosed
		}
	case !probe:
		cb.failures = 0
	}
	if to != from {
		cb.transition(to)
	}
	failures := cb.failures
	cb.mu.Unlock()

	if to != from {
		if to == StateOpen {
			slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "from", from.String(), "consecutive_failures", failures)
		}
		cb.notify(from, to)
	}
}

// transition switches state and resets the counters of the new mode. Must
// be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) State {
	from := cb.state
	cb.state = to
	cb.probes, cb.passed = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateClosed:
		cb.failures = 0
	}
	return from
}

// cooledDown must be called with cb.mu held.
func (cb *CircuitBreaker) cooledDown() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) notify(from, to State) {
	if to != StateOpen {
		slog.Info("circuit breaker state changed", "name", cb.cfg.Name, "from", from.String(), "to", to.String())
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
